package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"llmhub/internal/dashboard"
	"llmhub/internal/domain"
	"llmhub/internal/schema"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "List and manage hub sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(a),
		newSessionsShowCmd(a),
		newSessionsDeleteCmd(a),
		newSessionsCloseCmd(a),
		newSessionsMemoryCmd(a),
	)
	return cmd
}

func newSessionsListCmd(a *app) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			list, err := c.Sessions(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if len(list.Sessions) == 0 {
				a.printf("%s\n", mutedStyle.Render("No sessions yet."))
				return nil
			}
			now := time.Now()
			w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, headerStyle.Render("ID")+"\tPROVIDER\tMODEL\tSTATUS\tMESSAGES\tCREATED")
			for _, s := range list.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					idStyle.Render(s.SessionID), s.Provider, s.Model, s.Status, s.MessageCount,
					dateStyle.Render(dashboard.RelativeTime(s.CreatedAt, now)))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			a.printf("%s\n", mutedStyle.Render(fmt.Sprintf("%d of %d sessions", len(list.Sessions), list.Total)))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size (1-100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newSessionsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			s, err := c.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("%s %s\n", headerStyle.Render("Session"), idStyle.Render(s.SessionID))
			a.printf("  provider: %s  model: %s  status: %s\n", s.Provider, s.Model, s.Status)
			a.printf("  created:  %s\n", dashboard.FormatDateTime(s.CreatedAt, time.Local))
			if s.ExpiresAt != nil {
				a.printf("  expires:  %s\n", dashboard.FormatDateTime(*s.ExpiresAt, time.Local))
			}
			a.printf("\n")
			printMessages(a, s.Messages)
			return nil
		},
	}
}

func printMessages(a *app, msgs []schema.ChatMessage) {
	if len(msgs) == 0 {
		a.printf("%s\n", mutedStyle.Render("No messages in this session."))
		return
	}
	for _, m := range msgs {
		label := assistantStyle.Render(string(m.Role))
		if m.Role == domain.RoleUser {
			label = userStyle.Render(string(m.Role))
		}
		a.printf("%s\n%s\n\n", label, m.Content)
	}
}

func newSessionsDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !yes {
				confirm := false
				prompt := &survey.Confirm{Message: fmt.Sprintf("Delete session %s?", id)}
				if err := survey.AskOne(prompt, &confirm); err != nil {
					return fmt.Errorf("confirmation prompt failed: %w", err)
				}
				if !confirm {
					a.printf("%s\n", mutedStyle.Render("Deletion cancelled"))
					return nil
				}
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.DeleteSession(cmd.Context(), id); err != nil {
				return err
			}
			a.printf("Deleted session %s\n", idStyle.Render(id))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newSessionsCloseCmd(a *app) *cobra.Command {
	var compression, provider string
	cmd := &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session and print its compressed memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.CloseSession(cmd.Context(), args[0], schema.CloseSessionRequest{Compression: compression, Provider: provider})
			if err != nil {
				return err
			}
			a.printf("Closed session %s (%s)\n", idStyle.Render(res.SessionID), res.Status)
			if res.CompressedMemory != "" {
				a.printf("\n%s\n", res.CompressedMemory)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&compression, "compression", "medium", "none, low, medium or high")
	cmd.Flags().StringVar(&provider, "provider", "", "provider that writes the summary")
	return cmd
}

func newSessionsMemoryCmd(a *app) *cobra.Command {
	var compression, provider, format string
	cmd := &cobra.Command{
		Use:   "memory <session-id>",
		Short: "Export a session transcript or its compressed memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.SessionMemory(cmd.Context(), args[0], compression, provider, format)
			if err != nil {
				return err
			}
			if res.CompressedMemory != "" {
				a.printf("%s\n", res.CompressedMemory)
				return nil
			}
			a.printf("%s\n", res.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&compression, "compression", "none", "none, low, medium or high")
	cmd.Flags().StringVar(&provider, "provider", "", "provider that writes the summary")
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown or json")
	return cmd
}
