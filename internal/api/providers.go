package api

import (
	"net/http"

	"llmhub/internal/domain"
	"llmhub/internal/schema"
)

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	list := s.sessions.Providers()
	out := make([]schema.ProviderInfo, 0, len(list))
	for _, p := range list {
		out = append(out, schema.ProviderInfo{Name: p.Name(), Models: p.SupportedModels(), DefaultModel: p.DefaultModel()})
	}
	writeJSON(w, http.StatusOK, out)
}

type aliased interface {
	Aliases() map[string]string
}

func (s *Server) getProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.sessions.Provider(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	detail := schema.ProviderDetail{
		Name:         p.Name(),
		Status:       domain.StatusHealthy,
		Models:       p.SupportedModels(),
		DefaultModel: p.DefaultModel(),
		AuthMethod:   p.AuthMethod(),
	}
	if a, ok := p.(aliased); ok {
		if aliases := a.Aliases(); len(aliases) > 0 {
			detail.Aliases = aliases
		}
	}
	if c, ok := s.health.Detailed(r.Context()).Components[p.Name()]; ok {
		detail.Status = c.Status
		detail.Error = c.Error
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) providerModels(w http.ResponseWriter, r *http.Request) {
	p, err := s.sessions.Provider(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.SupportedModels())
}
