// Package model defines the provider-agnostic contract the run engine uses to
// talk to language models, plus helpers around it.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Carry the tool set on every Request so clients hold no per-call state
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers (see the openai and anthropic sub-packages) implement Model so the
// engine stays decoupled from vendor SDKs. Clients that only offer a stateful
// tool binding API are wrapped with Bound.
package model
