// Package workflow composes agents, teams and functions into multi-step
// pipelines.
//
// A Workflow runs its steps in order. Each step sees the workflow message and
// the outputs of every earlier step; agent and team steps receive the content
// of the previous step as their prompt. Steps nest:
//
//   - Steps runs a fixed sequence
//   - Parallel runs its steps concurrently on the same input and aggregates
//     their outputs
//   - Loop repeats its steps until an end condition holds or the iteration
//     limit is reached
//   - Condition runs its steps only when an evaluator accepts the input
//   - Router picks the steps to run from the input
//
// Agent and team steps execute through a runner.Runner, so sessions, tool
// gating, limits and tracing behave exactly as for direct runs. A step whose
// run pauses on a gated tool call fails with ErrStepPaused.
package workflow
