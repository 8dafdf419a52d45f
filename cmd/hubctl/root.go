package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"llmhub/internal/client"
)

type app struct {
	server  string
	timeout time.Duration
	in      io.Reader
	out     io.Writer
}

func (a *app) client() (*client.Client, error) {
	c, err := client.New(a.server, a.timeout)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}
	root := &cobra.Command{
		Use:   "hubctl",
		Short: "Inspect and drive an LLM hub from the terminal",
		Long: `hubctl talks to a running LLM hub over its HTTP API.

It shows system and token health, lists providers and sessions,
and runs one-shot or interactive chats with streaming output.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	defaultServer := os.Getenv("HUB_API_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	root.PersistentFlags().StringVarP(&a.server, "server", "s", defaultServer, "hub base URL")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 150*time.Second, "request timeout")

	root.AddCommand(
		newStatusCmd(a),
		newProvidersCmd(a),
		newTokensCmd(a),
		newSessionsCmd(a),
		newChatCmd(a),
	)
	return root
}
