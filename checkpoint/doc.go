// Package checkpoint provides durable storage for conversation threads.
//
// A thread's history is persisted as a sequence of checkpoints, each a
// complete snapshot of the conversation taken at the end of a turn.
// Loading a thread means loading its latest checkpoint; earlier snapshots
// remain available in the backing store for inspection and recovery.
//
// Two implementations are provided: SQLiteStore for durable single-file
// persistence and InMemoryStore for tests and ephemeral agents.
package checkpoint
