package api

import (
	"net/http"
	"strconv"
	"time"

	"llmhub/internal/apperr"
	"llmhub/internal/domain"
	"llmhub/internal/schema"
	"llmhub/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.InvalidRequest(name + " must be an integer")
	}
	return n, nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit < 1 || limit > maxListLimit {
		writeError(w, apperr.InvalidRequest("limit must be between 1 and 100"))
		return
	}
	if offset < 0 {
		writeError(w, apperr.InvalidRequest("offset must be >= 0"))
		return
	}

	items, err := s.sessions.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := schema.SessionListResponse{Sessions: make([]schema.SessionResponse, 0, len(items)), Limit: limit, Offset: offset}
	for _, sess := range items {
		out.Sessions = append(out.Sessions, schema.FromSession(sess, s.sessions.SupportedModels(sess.Provider), false))
	}
	if out.Total, err = s.sessions.Count(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req schema.CreateSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if req.TTL < 0 {
		writeError(w, apperr.InvalidRequest("ttl must be positive"))
		return
	}
	in := service.CreateSessionInput{
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		TTL:          time.Duration(req.TTL) * time.Second,
		Metadata:     req.Metadata,
	}
	if req.Context != nil {
		in.Context = &domain.SessionContext{
			Memory:          req.Context.Memory,
			PreviousSummary: req.Context.PreviousSummary,
			Files:           req.Context.Files,
		}
	}
	sess, err := s.sessions.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.FromSession(sess, s.sessions.SupportedModels(sess.Provider), false))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.FromSession(sess, s.sessions.SupportedModels(sess.Provider), true))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.sessions.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, apperr.SessionNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, schema.DeleteSessionResponse{Success: true, SessionID: id})
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	var req schema.CloseSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	level, err := service.ParseCompression(req.Compression)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.memory.CloseWithMemory(r.Context(), r.PathValue("id"), level, req.Provider)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.CloseSessionResponse{
		Success:          true,
		SessionID:        res.SessionID,
		Status:           res.Status,
		CompressedMemory: res.CompressedMemory,
	})
}

func (s *Server) sessionMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	level, err := service.ParseCompression(q.Get("compression"))
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.memory.Export(r.Context(), service.ExportInput{
		SessionID:   r.PathValue("id"),
		Compression: level,
		Provider:    q.Get("provider"),
		Format:      q.Get("format"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.SessionMemoryResponse{
		SessionID:        out.SessionID,
		Compression:      string(out.Compression),
		Format:           out.Format,
		Content:          out.Content,
		CompressedMemory: out.CompressedMemory,
		Metadata:         out.Metadata,
	})
}
