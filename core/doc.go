// Package core provides the foundational domain types shared by the parlor
// runtime. It defines:
//
//   - Message (closed sum type: user / assistant / tool-result variants)
//   - ToolCall (structured tool invocation requests emitted by models)
//   - Thread and Checkpoint identities plus the name-derivation rule
//   - The wire codec used to persist message histories
//   - The typed error taxonomy for fatal turn failures
//
// The package intentionally keeps implementation concerns (persistence,
// engine orchestration, concrete tools and providers) out of scope so every
// other package can depend on it without cycles.
package core
