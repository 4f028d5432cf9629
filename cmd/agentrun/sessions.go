package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrun"
	"github.com/hupe1980/agentrun/core"
)

func newSessionsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and delete stored sessions",
	}

	cmd.AddCommand(newSessionsListCmd(root), newSessionsShowCmd(root), newSessionsDeleteCmd(root))

	return cmd
}

func newSessionsListCmd(root *rootFlags) *cobra.Command {
	var filter core.ListFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores, err := agentrun.OpenStores(root.cfg.Storage)
			if err != nil {
				return err
			}
			defer stores.Close()

			recs, err := stores.Sessions.ListSessions(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tENTITY\tRUNS\tUPDATED")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.UserID, r.EntityID, len(r.Runs), r.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.UserID, "user", "", "Only sessions of this user")
	cmd.Flags().StringVar(&filter.EntityID, "entity", "", "Only sessions of this agent or team")

	return cmd
}

func newSessionsShowCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := agentrun.OpenStores(root.cfg.Storage)
			if err != nil {
				return err
			}
			defer stores.Close()

			rec, err := stores.Sessions.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}

func newSessionsDeleteCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := agentrun.OpenStores(root.cfg.Storage)
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.Sessions.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
