package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"llmhub/internal/apperr"
	"llmhub/internal/schema"
	"llmhub/internal/service"
)

const sessionHeader = "X-Session-ID"

func (s *Server) chatCompletions(w http.ResponseWriter, r *http.Request) {
	if !s.allowChat(w, r) {
		return
	}

	var req schema.ChatCompletionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if req.Timeout < 0 {
		writeError(w, apperr.InvalidRequest("timeout must be positive"))
		return
	}
	in, err := service.MessagesInput(schema.ToMessages(req.Messages, s.now()))
	if err != nil {
		writeError(w, err)
		return
	}
	in.Provider = req.Provider
	in.Model = req.Model
	in.SessionID = strings.TrimSpace(r.Header.Get(sessionHeader))
	in.Timeout = time.Duration(req.Timeout * float64(time.Second))

	if req.Stream {
		s.streamChat(w, r, in)
		return
	}

	res, err := s.chat.Chat(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(sessionHeader, res.SessionID)
	writeJSON(w, http.StatusOK, schema.ChatCompletionResponse{
		Response:  res.Response,
		SessionID: res.SessionID,
		Provider:  res.Provider,
		Model:     res.Model,
	})
}

// streamChat answers with server-sent events: one "message" event per
// chunk, then "done" or "error".
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, in service.ChatInput) {
	flusher, _ := w.(http.Flusher)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, data schema.StreamEvent) error {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	res, err := s.chat.ChatStream(r.Context(), in, func(chunk string) error {
		return send("message", schema.StreamEvent{Type: schema.EventContent, Text: chunk})
	})
	if err != nil {
		e, ok := apperr.As(err)
		if !ok {
			e = apperr.New(apperr.CodeInternal, err.Error(), nil)
		}
		if r.Context().Err() == nil {
			_ = send("error", schema.StreamEvent{Type: schema.EventError, Error: e.Message, Code: e.Code})
		}
		return
	}
	_ = send("done", schema.StreamEvent{
		Type:      schema.EventDone,
		SessionID: res.SessionID,
		Provider:  res.Provider,
		Model:     res.Model,
	})
}

func (s *Server) allowChat(w http.ResponseWriter, r *http.Request) bool {
	if !s.limiter.Enabled() {
		return true
	}
	allowed, used, resetAt, err := s.limiter.Allow(r.Context(), clientIP(r), s.now())
	if err != nil {
		// The limiter fails open when Redis is unavailable.
		s.logger.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.RateLimited.Inc()
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(resetAt.Sub(s.now()).Seconds())+1))
		s.logger.Info().Str("client", clientIP(r)).Int64("used", used).Msg("chat rate limited")
		writeError(w, apperr.RateLimited(resetAt))
		return false
	}
	return true
}
