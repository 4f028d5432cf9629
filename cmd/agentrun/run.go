package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrun"
	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/runner"
)

type runFlags struct {
	sessionID   string
	userID      string
	instruction string
	autoApprove bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run one turn and resolve paused tool calls interactively",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			llm, err := agentrun.NewModel(root.cfg.Model)
			if err != nil {
				return err
			}

			a, err := agent.New("assistant", llm, func(o *agent.Options) {
				o.StateTools = true
				if flags.instruction != "" {
					o.Instruction = agent.NewInstructionFromText(flags.instruction)
				}
			})
			if err != nil {
				return err
			}

			ar, err := agentrun.FromConfig(root.cfg, a)
			if err != nil {
				return err
			}
			defer ar.Close()

			s := &terminal{
				ar:          ar,
				in:          bufio.NewReader(cmd.InOrStdin()),
				out:         cmd.OutOrStdout(),
				autoApprove: flags.autoApprove,
			}

			return s.run(cmd.Context(), runner.Input{
				SessionID: flags.sessionID,
				UserID:    flags.userID,
				Message:   strings.Join(args, " "),
			})
		},
	}

	cmd.Flags().StringVarP(&flags.sessionID, "session", "s", "", "Session id (a new one is generated when empty)")
	cmd.Flags().StringVarP(&flags.userID, "user", "u", "", "User id, enables long-term memories")
	cmd.Flags().StringVar(&flags.instruction, "instruction", "", "System instruction of the agent")
	cmd.Flags().BoolVarP(&flags.autoApprove, "yes", "y", false, "Confirm every gated tool call without asking")

	return cmd
}

// terminal drives one turn on the console.
type terminal struct {
	ar          *agentrun.AgentRun
	in          *bufio.Reader
	out         io.Writer
	autoApprove bool
}

func (s *terminal) run(ctx context.Context, in runner.Input) error {
	events, err := s.ar.Stream(ctx, in)
	if err != nil {
		return err
	}

	for {
		rec, err := s.print(events)
		if err != nil {
			return err
		}
		if !rec.IsPaused() {
			fmt.Fprintf(s.out, "\n[session %s, run %s, %d tokens]\n", rec.SessionID, rec.ID, rec.Usage.TotalTokens)
			return nil
		}

		for _, inv := range rec.Pending() {
			if err := s.resolve(inv); err != nil {
				return err
			}
		}

		events, err = s.ar.Runner().ResumeStream(ctx, rec)
		if err != nil {
			return err
		}
	}
}

// print writes the events of one call and returns the final record.
func (s *terminal) print(events <-chan core.Event) (*core.RunRecord, error) {
	var rec *core.RunRecord

	for ev := range events {
		switch ev.Kind {
		case core.EventModelDelta:
			d, _ := ev.Delta()
			fmt.Fprint(s.out, d.Content)
		case core.EventToolCallCompleted:
			inv, _ := ev.Invocation()
			content, isErr := inv.ResultContent()
			status := "ok"
			if isErr {
				status = "error"
			}
			fmt.Fprintf(s.out, "\n[tool %s %s] %s\n", inv.ToolName, status, content)
		case core.EventMemoryUpdateCompleted:
			if p, ok := ev.Payload.(core.MemoryPayload); ok && p.Memories > 0 {
				fmt.Fprintf(s.out, "\n[%d new memories]\n", p.Memories)
			}
		default:
			if ev.Kind.IsTerminal() {
				rec, _ = ev.Record()
			}
		}
	}

	switch {
	case rec == nil:
		return nil, errors.New("run ended without a terminal event")
	case rec.Status == core.RunStatusError:
		return rec, fmt.Errorf("run %s failed: %s", rec.ID, rec.Error)
	case rec.Status == core.RunStatusCancelled:
		return rec, core.ErrRunCancelled
	}
	return rec, nil
}

func (s *terminal) resolve(inv *core.ToolInvocation) error {
	args, _ := json.Marshal(inv.Args())
	fmt.Fprintf(s.out, "\n%s wants to call %s %s\n", inv.Gating, inv.ToolName, args)

	switch inv.Gating {
	case core.GatingRequiresUserInput:
		for _, name := range inv.MissingFields() {
			v, err := s.ask(fmt.Sprintf("  %s: ", name))
			if err != nil {
				return err
			}
			if err := inv.SetFieldValue(name, v); err != nil {
				return err
			}
		}
	case core.GatingRequiresExternalExecution:
		v, err := s.ask("  result (JSON or text): ")
		if err != nil {
			return err
		}
		var parsed any
		if json.Unmarshal([]byte(v), &parsed) == nil {
			inv.SetResult(parsed)
		} else {
			inv.SetResult(v)
		}
	default:
		if s.autoApprove {
			inv.Confirm()
			return nil
		}
		v, err := s.ask("  confirm? [y/N] ")
		if err != nil {
			return err
		}
		if strings.EqualFold(v, "y") || strings.EqualFold(v, "yes") {
			inv.Confirm()
			return nil
		}
		note, err := s.ask("  reason (optional): ")
		if err != nil {
			return err
		}
		inv.Reject(note)
	}

	return nil
}

func (s *terminal) ask(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	line, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
