// Package agent defines the targets a run can drive: a single Agent (a model,
// its tools, instructions and a local state bag) and a Team (a leader model
// that delegates tasks to member agents or nested teams through a generated
// delegate_task_to_member tool, sharing a team state bag with them).
//
// Targets are passive descriptions. The runner package drives them.
package agent
