// Package engine implements the turn state machine that drives a model
// through tool calls to a final answer.
//
// A turn starts from a thread's committed history, appends the incoming
// user message, and alternates model calls with tool dispatch until the
// model answers without requesting tools. Answer text streams to the
// caller as it is generated; the grown history is committed as a single
// checkpoint only when the turn completes. Cancelled and failed turns
// leave the thread at its previous checkpoint.
package engine
