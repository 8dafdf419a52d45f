package main

import (
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"llmhub/internal/dashboard"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show overall and per-component health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			h, err := c.DetailedHealth(cmd.Context())
			if err != nil {
				return err
			}
			a.printf("%s %s  %s\n", headerStyle.Render(dashboard.HealthHeadline(h.Status)), badge(dashboard.HealthBadge(h.Status)),
				mutedStyle.Render("v"+h.Version))

			names := make([]string, 0, len(h.Components))
			for name := range h.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				comp := h.Components[name]
				line := "  " + padRight(name, 12) + badge(dashboard.ComponentBadge(comp.Status))
				if comp.LatencyMS != nil {
					line += mutedStyle.Render(" " + (time.Duration(*comp.LatencyMS) * time.Millisecond).String())
				}
				if comp.Error != "" {
					line += " " + errorStyle.Render(comp.Error)
				}
				a.printf("%s\n", line)
			}

			tokens, err := c.Tokens(cmd.Context())
			if err != nil {
				return nil
			}
			for _, alert := range dashboard.TokenAlerts(tokens) {
				a.printf("%s %s\n", badge(dashboard.Badge{Variant: alert.Variant, Label: alert.Title}), alert.Message)
			}
			return nil
		},
	}
}

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "providers",
		Aliases: []string{"provider"},
		Short:   "List enabled providers and their models",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				d, err := c.Provider(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				a.printf("%s %s\n", headerStyle.Render(d.Name), badge(dashboard.ComponentBadge(d.Status)))
				a.printf("  auth:    %s\n  default: %s\n", d.AuthMethod, d.DefaultModel)
				for _, m := range d.Models {
					a.printf("  - %s\n", m)
				}
				for alias, target := range d.Aliases {
					a.printf("  %s -> %s\n", mutedStyle.Render(alias), target)
				}
				if d.Error != "" {
					a.printf("  %s\n", errorStyle.Render(d.Error))
				}
				return nil
			}
			list, err := c.Providers(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				a.printf("%s\n", mutedStyle.Render("No providers are configured."))
				return nil
			}
			for _, p := range list {
				a.printf("%s  %s\n", headerStyle.Render(p.Name), mutedStyle.Render("default "+p.DefaultModel))
				a.printf("  %s\n", strings.Join(p.Models, ", "))
			}
			return nil
		},
	}
}

func newTokensCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "Show provider credential status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			tokens, err := c.Tokens(cmd.Context())
			if err != nil {
				return err
			}
			entries := dashboard.TokenEntries(tokens)
			if len(entries) == 0 {
				a.printf("%s\n", mutedStyle.Render("No token information available."))
				return nil
			}
			for _, e := range entries {
				line := padRight(e.Provider, 12) + badge(e.Badge)
				if e.Status.ExpiresAt != nil {
					line += dateStyle.Render("  expires " + dashboard.FormatDate(*e.Status.ExpiresAt, time.Local))
				}
				if e.Status.Error != "" {
					line += "  " + errorStyle.Render(e.Status.Error)
				}
				a.printf("%s\n", line)
			}
			return nil
		},
	}
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s + " "
	}
	return s + strings.Repeat(" ", n-len(s))
}
