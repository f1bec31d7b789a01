// Package connection implements the live-update Connection Manager.
//
// The Connection Manager:
//   - Owns one logical WebSocket connection to the streaming endpoint
//   - Keeps the server-side subscriptions in sync with the locally desired topics
//   - Fans inbound {topic, data} messages out to registered listeners
//   - Reconnects with bounded exponential backoff (1s, 2s, 4s, 8s, 16s by default)
//   - Replays the full topic set as a single subscribe after every (re)connect
//
// Subscriptions are reference counted. Two callers subscribing to the same
// topic each hold a reference, and the wire-level unsubscribe is only sent
// once the last reference is released. A plain shared set would let one
// caller's Unsubscribe silently cancel another caller's interest.
//
// Nothing in this package is a process-wide singleton. The composition root
// constructs a Manager, calls Connect, and calls Disconnect on shutdown.
package connection
