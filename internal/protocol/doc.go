// Package protocol owns the command-buffer wire contract shared by both
// directions of the bridge.
//
// Ownership boundary:
// - error taxonomy (bounds, stale handle, malformed value)
// - channel primitives (protocol/channel)
// - command field layouts (protocol/schema)
package protocol
