package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"llmhub/internal/client"
	"llmhub/internal/dashboard"
	"llmhub/internal/schema"
)

type chatOptions struct {
	provider string
	model    string
	session  string
	noStream bool
}

func newChatCmd(a *app) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a prompt, or start an interactive chat when none is given",
		Long: `Send a prompt to the hub and print the reply.

Without a prompt hubctl reads lines from stdin and keeps the conversation
in one hub session. Type /clear to start over and /exit to quit.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			panel := &dashboard.ChatPanel{Provider: opts.provider, Model: opts.model, SessionID: opts.session}
			if len(args) > 0 {
				return a.chatTurn(cmd.Context(), c, panel, strings.Join(args, " "), !opts.noStream)
			}
			return a.repl(cmd.Context(), c, panel, !opts.noStream)
		},
	}
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "provider name")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model or alias")
	cmd.Flags().StringVar(&opts.session, "session", "", "continue an existing session")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "wait for the full reply")
	return cmd
}

func (a *app) repl(ctx context.Context, c *client.Client, panel *dashboard.ChatPanel, stream bool) error {
	sc := bufio.NewScanner(a.in)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		a.printf("%s ", userStyle.Render(">"))
		if !sc.Scan() {
			a.printf("\n")
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			panel.Clear()
			a.printf("%s\n", mutedStyle.Render("conversation cleared"))
			continue
		}
		if err := a.chatTurn(ctx, c, panel, line, stream); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// chatTurn sends the transcript plus line and prints the reply. Failures are
// printed inline and kept in the panel so the conversation can continue.
func (a *app) chatTurn(ctx context.Context, c *client.Client, panel *dashboard.ChatPanel, line string, stream bool) error {
	req := panel.Begin(line, time.Now())
	var (
		resp schema.ChatCompletionResponse
		err  error
	)
	if stream {
		resp, err = a.streamReply(ctx, c, req, panel.SessionID)
	} else {
		resp, err = c.Chat(ctx, req, panel.SessionID)
		if err == nil {
			a.printf("%s\n", resp.Response)
		}
	}
	panel.Resolve(resp, err, time.Now())
	if err != nil {
		a.printf("%s\n", errorStyle.Render(panel.Turns[len(panel.Turns)-1].Content))
		return err
	}
	a.printf("%s\n", mutedStyle.Render(fmt.Sprintf("[%s/%s session %s]", resp.Provider, resp.Model, dashboard.ShortID(resp.SessionID))))
	return nil
}

func (a *app) streamReply(ctx context.Context, c *client.Client, req schema.ChatCompletionRequest, sessionID string) (schema.ChatCompletionResponse, error) {
	var text strings.Builder
	done, err := c.ChatStream(ctx, req, sessionID, func(ev schema.StreamEvent) error {
		if ev.Type == schema.EventContent {
			text.WriteString(ev.Text)
			a.printf("%s", ev.Text)
		}
		return nil
	})
	if text.Len() > 0 {
		a.printf("\n")
	}
	if err != nil {
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) && text.Len() > 0 {
			err = fmt.Errorf("stream interrupted: %w", err)
		}
		return schema.ChatCompletionResponse{}, err
	}
	return schema.ChatCompletionResponse{
		Response:  text.String(),
		SessionID: done.SessionID,
		Provider:  done.Provider,
		Model:     done.Model,
	}, nil
}
