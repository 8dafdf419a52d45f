package api

import (
	"net/http"

	"llmhub/internal/schema"
)

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, schema.RootResponse{Name: s.appName, Version: s.version, Docs: "/v1"})
}

func (s *Server) healthBasic(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Basic())
}

func (s *Server) healthDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Detailed(r.Context()))
}

func (s *Server) healthTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Tokens(r.Context()))
}
