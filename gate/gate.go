// Package gate classifies tool invocations. A tool's static declaration
// decides whether its calls execute immediately or suspend the run; the gate
// never lowers that class at runtime.
package gate

import (
	"path/filepath"
	"slices"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/util"
)

// Declared is the part of a tool the gate looks at.
type Declared interface {
	Name() string
	Parameters() map[string]any
	Declaration() core.ToolDeclaration
}

// Options configures a Gate.
type Options struct {
	// Escalations are filepath.Match patterns over tool names. A normal tool
	// whose name matches is raised to requires_confirmation.
	Escalations []string
}

// Gate is the stateless tool invocation gate.
type Gate struct {
	escalations []string
}

// New returns a gate.
func New(optFns ...func(o *Options)) *Gate {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Gate{escalations: slices.Clone(opts.Escalations)}
}

// Classify returns the gating class of inv. Unknown declared classes yield
// requires_confirmation together with an UnknownGatingClassError.
func (g *Gate) Classify(t Declared, inv *core.ToolInvocation) (core.GatingClass, error) {
	decl := t.Declaration()

	if !decl.Gating.Valid() {
		return core.GatingRequiresConfirmation, &core.UnknownGatingClassError{Tool: t.Name(), Value: decl.Gating.String()}
	}

	if decl.Gating == core.GatingNormal && g.escalated(t.Name()) {
		return core.GatingRequiresConfirmation, nil
	}

	return decl.Gating, nil
}

// Prepare classifies inv and records the outcome on it. For
// requires_user_input it fills UserInputFields: parameters the caller must
// supply start empty, every other parameter is prefilled from the model's
// arguments and marked supplied.
func (g *Gate) Prepare(t Declared, inv *core.ToolInvocation) error {
	class, err := g.Classify(t, inv)
	inv.Gating = class

	if class == core.GatingRequiresUserInput {
		inv.UserInputFields = UserInputFields(t, inv)
	}

	return err
}

func (g *Gate) escalated(name string) bool {
	for _, pattern := range g.escalations {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}

	return false
}

// UserInputFields builds the field list of a requires_user_input invocation.
// An empty declared field list makes every parameter user-editable.
func UserInputFields(t Declared, inv *core.ToolInvocation) []core.UserInputField {
	decl := t.Declaration()
	props := util.Properties(t.Parameters())

	userEditable := func(name string) bool {
		return len(decl.UserInputFields) == 0 || slices.Contains(decl.UserInputFields, name)
	}

	fields := make([]core.UserInputField, 0, len(props))
	for _, p := range props {
		f := core.UserInputField{Name: p.Name, Type: p.Type, Description: p.Description}
		if !userEditable(p.Name) {
			if inv.Arguments != nil {
				f.Value, _ = inv.Arguments.Get(p.Name)
			}
			f.Supplied = true
		}
		fields = append(fields, f)
	}

	return fields
}
