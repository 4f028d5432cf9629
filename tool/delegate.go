package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrun/core"
)

// DelegateToolName is the name of the generated team delegation tool.
const DelegateToolName = "delegate_task_to_member"

// Member describes a delegation target for the model.
type Member struct {
	Name        string
	Description string
}

// NewDelegateTool constructs the tool a team leader uses to hand a task to
// one of its members. The call runs the member through ToolContext.Delegate
// and returns the member's final answer.
func NewDelegateTool(members []Member) Tool {
	names := make([]any, len(members))
	var desc strings.Builder
	desc.WriteString("Delegate a task to one of the team members and return the member's answer. Members:")
	for i, m := range members {
		names[i] = m.Name
		fmt.Fprintf(&desc, "\n- %s", m.Name)
		if m.Description != "" {
			fmt.Fprintf(&desc, ": %s", m.Description)
		}
	}

	return NewFunctionTool(
		DelegateToolName,
		desc.String(),
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"member": map[string]any{"type": "string", "enum": names, "description": "Target member name"},
				"task":   map[string]any{"type": "string", "description": "Task with all the context the member needs"},
			},
			"required": []string{"member", "task"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			member, _ := args["member"].(string)
			task, _ := args["task"].(string)
			if member == "" {
				return nil, fmt.Errorf("field 'member' must be non-empty string")
			}
			return tc.Delegate(member, task)
		},
	)
}
