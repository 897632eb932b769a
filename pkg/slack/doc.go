// Copyright 2024-2026 Aiku AI

// Package slack bridges the Slack Real Time Messaging stream into a generic
// message-bus abstraction and provides a resilient paginated client for the
// Slack Web API.
//
// # Core Types
//
// [API] is the RPC-style HTTP client. It issues form-encoded calls with the
// configured token injected, follows cursor pagination with a rate-limit
// retry branch, and performs the rtm.start bootstrap handshake.
//
// [Conn] owns the streaming connection lifecycle: it runs the bootstrap,
// opens the WebSocket, forwards frames to a [FrameHandler] on independent
// goroutines, enforces the outbound frame-size ceiling, and transparently
// reconnects when the service drops the stream without a close handshake.
// Any other close code terminates the runtime.
//
// [Dispatcher] classifies decoded frames and turns them into normalized
// [bus.Message] values or named triggers on the host bus, resolving actor
// identities through a [UserRegistry] backed by a host-provided [UserStore].
//
// [Adapter] ties the three together behind the surface a host framework
// drives: Run, SendMessages, SendAttachments, Shutdown.
//
// # Sub-packages
//
//   - slackfmt rewrites Slack message markup into plain text.
//   - store provides in-memory and sqlite-backed UserStore implementations.
package slack
