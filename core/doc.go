// Package core holds the data model of the run execution engine and the
// contracts it consumes. It defines:
//
//   - Messages and tool calls exchanged with model providers
//   - Tool invocations and their gating classes (normal, requires_confirmation,
//     requires_user_input, requires_external_execution)
//   - Run records and the run status transition table
//   - Lifecycle events and their payloads
//   - Session state bags and session records
//   - The storage (SessionStore) and memory (MemoryStore) contracts
//   - RunContext / ToolContext, the scopes handed to the run loop and to tools
//
// Concrete engines, stores and providers live in sibling packages; core only
// depends on the logging package.
package core
