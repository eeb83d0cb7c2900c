// Package model defines the provider-agnostic abstractions for invoking
// language models inside parlor.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool call representation across vendors (ToolDefinition)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so the turn engine remains decoupled from vendor SDKs.
package model
