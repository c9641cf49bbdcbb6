// Package server implements the core of the minichat relay: the room
// registry, the broadcast engine, and the per-connection lifecycle over
// WebSockets.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, the room registry, wire messages, gateways, and
// HTTP handlers to keep the codebase maintainable and testable as the project
// grows.
package server
