// Package modeladapter defines the chat executor capability shrub drives and
// the shared plumbing concrete adapters build on.
//
// It contains:
//   - [Completer], [Streamer] and [Executor]: single-shot and streaming chat execution
//   - [ModelAdapter]: embeddable base struct with HTTP helpers, auth, and custom headers
//   - [SSEDecoder] and [LineDecoder]: stream framing for server-sent events and NDJSON
//   - [RetryingExecutor]: reactive 429 retry with exponential backoff
//   - [github.com/germanamz/shrub/pkg/modeladapter/usage]: thread-safe token usage tracker
//
// This package contains no provider-specific code; concrete adapters live in
// separate packages that import modeladapter.
package modeladapter
