package tool

import (
	"fmt"

	"github.com/hupe1980/agentrun/core"
)

// Scope selects which state bag the built-in state tools operate on.
type Scope int

const (
	// ScopeLocal targets the calling agent's own bag.
	ScopeLocal Scope = iota
	// ScopeTeam targets the team-shared bag; outside teams calls fail.
	ScopeTeam
)

// NewGetStateTool returns a tool that reads a key from session state.
func NewGetStateTool(scope Scope) Tool {
	return NewFunctionTool(
		scopedName("get", scope),
		"Read a value from the session state by key.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key": map[string]any{"type": "string", "description": "State key"},
			},
			"required": []string{"key"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			key, _ := args["key"].(string)

			var (
				value  any
				exists bool
			)
			if scope == ScopeTeam {
				if tc.TeamState() == nil {
					return nil, core.ErrNoTeamState
				}
				value, exists = tc.GetTeamState(key)
			} else {
				value, exists = tc.GetState(key)
			}

			return map[string]any{"key": key, "exists": exists, "value": value}, nil
		},
	)
}

// NewSetStateTool returns a tool that writes a key to session state.
func NewSetStateTool(scope Scope) Tool {
	return NewFunctionTool(
		scopedName("set", scope),
		"Store a value in the session state under key.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key":   map[string]any{"type": "string", "description": "State key"},
				"value": map[string]any{"description": "Value to store (any JSON type)"},
			},
			"required": []string{"key", "value"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			value := args["value"]

			if scope == ScopeTeam {
				if err := tc.SetTeamState(key, value); err != nil {
					return nil, err
				}
			} else {
				tc.SetState(key, value)
			}

			return map[string]any{
				"key":     key,
				"success": true,
				"message": fmt.Sprintf("State key '%s' set successfully", key),
			}, nil
		},
	)
}

func scopedName(verb string, scope Scope) string {
	if scope == ScopeTeam {
		return verb + "_team_state"
	}
	return verb + "_state"
}
