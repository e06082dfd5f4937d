// Package server implements the GoRelay broadcast relay.
//
// Clients connect over TCP (or WebSocket through the optional gateway), send
// their display name as the first message and then chat. Every message is
// relayed to all other members of a fixed-capacity registry. The
// implementation is organized into files for the registry, broadcasting,
// the per-connection handler, the acceptor, shutdown, configuration and the
// HTTP side (gateway, health and metrics).
package server
