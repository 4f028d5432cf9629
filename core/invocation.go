package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// GatingClass decides whether a tool call may execute immediately or must
// suspend the run. The set is closed; values outside it are reported by the
// gate as UnknownGatingClassError and handled as GatingRequiresConfirmation.
type GatingClass int

const (
	GatingNormal GatingClass = iota
	GatingRequiresConfirmation
	GatingRequiresUserInput
	GatingRequiresExternalExecution
)

var gatingClassNames = map[GatingClass]string{
	GatingNormal:                    "normal",
	GatingRequiresConfirmation:      "requires_confirmation",
	GatingRequiresUserInput:         "requires_user_input",
	GatingRequiresExternalExecution: "requires_external_execution",
}

// String returns the wire name of the class.
func (g GatingClass) String() string {
	if s, ok := gatingClassNames[g]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", int(g))
}

// Valid reports whether g is one of the four declared classes.
func (g GatingClass) Valid() bool {
	_, ok := gatingClassNames[g]
	return ok
}

// Suspends reports whether invocations of this class pause the run.
func (g GatingClass) Suspends() bool { return g != GatingNormal }

// ParseGatingClass parses a wire name.
func ParseGatingClass(s string) (GatingClass, error) {
	for g, name := range gatingClassNames {
		if name == s {
			return g, nil
		}
	}
	return GatingRequiresConfirmation, &UnknownGatingClassError{Value: s}
}

// MarshalText implements encoding.TextMarshaler.
func (g GatingClass) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, &UnknownGatingClassError{Value: g.String()}
	}
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode to
// GatingRequiresConfirmation and return UnknownGatingClassError.
func (g *GatingClass) UnmarshalText(text []byte) error {
	parsed, err := ParseGatingClass(string(text))
	*g = parsed
	return err
}

// ToolDeclaration is the static gating declaration of a tool.
type ToolDeclaration struct {
	Gating GatingClass `json:"gating"`
	// UserInputFields names the parameters the caller must supply when Gating
	// is GatingRequiresUserInput. Empty means every parameter.
	UserInputFields []string `json:"user_input_fields,omitempty"`
}

// UserInputField is one parameter of a requires_user_input invocation.
type UserInputField struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Value       any    `json:"value,omitempty"`
	Supplied    bool   `json:"supplied"`
}

// ToolInvocation is a single tool call of a run together with its gating
// class and resolution state. It is created when the model emits a tool call
// and is never reused across turns.
type ToolInvocation struct {
	ID              string                              `json:"id"`
	ToolName        string                              `json:"tool_name"`
	Arguments       *orderedmap.OrderedMap[string, any] `json:"arguments"`
	Gating          GatingClass                         `json:"gating"`
	UserInputFields []UserInputField                    `json:"user_input_fields,omitempty"`

	Confirmed     bool   `json:"confirmed"`
	Rejected      bool   `json:"rejected,omitempty"`
	RejectionNote string `json:"rejection_note,omitempty"`

	Result    any    `json:"result,omitempty"`
	HasResult bool   `json:"has_result"`
	Error     string `json:"error,omitempty"`
	Executed  bool   `json:"executed"`

	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// NewToolInvocation builds an invocation from a model tool call. Argument
// order follows the JSON object emitted by the model.
func NewToolInvocation(call ToolCall) (*ToolInvocation, error) {
	args, err := DecodeArguments(call.Arguments)
	inv := &ToolInvocation{ID: call.ID, ToolName: call.Name, Arguments: args}
	if err != nil {
		return inv, fmt.Errorf("invalid arguments for tool %s: %w", call.Name, err)
	}
	return inv, nil
}

// DecodeArguments parses a JSON object into an ordered map. Empty input
// yields an empty map.
func DecodeArguments(raw json.RawMessage) (*orderedmap.OrderedMap[string, any], error) {
	args := orderedmap.New[string, any]()
	if len(bytes.TrimSpace(raw)) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, args); err != nil {
		return orderedmap.New[string, any](), err
	}
	return args, nil
}

// Args returns the arguments as a plain map.
func (t *ToolInvocation) Args() map[string]any {
	out := map[string]any{}
	if t.Arguments == nil {
		return out
	}
	for p := t.Arguments.Oldest(); p != nil; p = p.Next() {
		out[p.Key] = p.Value
	}
	return out
}

// Confirm marks a requires_confirmation invocation as approved.
func (t *ToolInvocation) Confirm() {
	t.Confirmed = true
	t.Rejected = false
}

// Reject declines the invocation. A rejected invocation is resolved but never
// executed.
func (t *ToolInvocation) Reject(note string) {
	t.Rejected = true
	t.Confirmed = false
	t.RejectionNote = note
}

// SetResult records a caller-supplied result, as for externally executed tools.
func (t *ToolInvocation) SetResult(v any) {
	t.Result = v
	t.HasResult = true
	t.Error = ""
}

// SetError records a caller-supplied failure for an externally executed tool.
func (t *ToolInvocation) SetError(msg string) {
	t.Result = nil
	t.HasResult = true
	t.Error = msg
}

// SetFieldValue supplies the value of a user-input field.
func (t *ToolInvocation) SetFieldValue(name string, value any) error {
	for i := range t.UserInputFields {
		if t.UserInputFields[i].Name == name {
			t.UserInputFields[i].Value = value
			t.UserInputFields[i].Supplied = true
			return nil
		}
	}
	return fmt.Errorf("tool %s has no user input field %q", t.ToolName, name)
}

// MissingFields returns the user-input fields still lacking a value.
func (t *ToolInvocation) MissingFields() []string {
	var missing []string
	for _, f := range t.UserInputFields {
		if !f.Supplied {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// IsResolved reports whether the invocation carries everything needed to
// continue the run.
func (t *ToolInvocation) IsResolved() bool { return t.UnresolvedReason() == "" }

// UnresolvedReason explains why the invocation is not resolved yet, or
// returns "" when it is.
func (t *ToolInvocation) UnresolvedReason() string {
	if t.HasResult || t.Rejected {
		return ""
	}
	switch t.Gating {
	case GatingNormal:
		return ""
	case GatingRequiresConfirmation:
		if !t.Confirmed {
			return "confirmation required"
		}
	case GatingRequiresUserInput:
		if missing := t.MissingFields(); len(missing) > 0 {
			return fmt.Sprintf("missing user input: %v", missing)
		}
	case GatingRequiresExternalExecution:
		return "external execution result required"
	default:
		if !t.Confirmed {
			return "confirmation required"
		}
	}
	return ""
}

// NeedsExecution reports whether the engine still has to run the tool.
func (t *ToolInvocation) NeedsExecution() bool { return !t.HasResult && !t.Rejected }

// ApplyUserInput copies supplied user-input values into the arguments.
func (t *ToolInvocation) ApplyUserInput() {
	if t.Arguments == nil {
		t.Arguments = orderedmap.New[string, any]()
	}
	for _, f := range t.UserInputFields {
		if f.Supplied {
			t.Arguments.Set(f.Name, f.Value)
		}
	}
}

// ResultContent renders the outcome as the content of a tool message.
func (t *ToolInvocation) ResultContent() (string, bool) {
	switch {
	case t.Rejected:
		msg := fmt.Sprintf("tool call %s was rejected by the user", t.ToolName)
		if t.RejectionNote != "" {
			msg += ": " + t.RejectionNote
		}
		return msg, true
	case t.Error != "":
		return t.Error, true
	}
	switch v := t.Result.(type) {
	case nil:
		return "", false
	case string:
		return v, false
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), false
		}
		return string(b), false
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (t *ToolInvocation) Clone() *ToolInvocation {
	c := *t
	c.Arguments = orderedmap.New[string, any]()
	if t.Arguments != nil {
		for p := t.Arguments.Oldest(); p != nil; p = p.Next() {
			c.Arguments.Set(p.Key, p.Value)
		}
	}
	if t.UserInputFields != nil {
		c.UserInputFields = append([]UserInputField(nil), t.UserInputFields...)
	}
	return &c
}
