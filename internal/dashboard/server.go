// Package dashboard is the server-rendered web console for the hub.
// It only reads from and calls the hub API.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"llmhub/internal/apperr"
	"llmhub/internal/client"
	"llmhub/internal/domain"
	"llmhub/internal/schema"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	panelCookie     = "llmhub_panel"
	sessionsPerPage = 50
)

// API is the slice of the hub client the dashboard reads from.
type API interface {
	Chatter
	DetailedHealth(ctx context.Context) (schema.DetailedHealthResponse, error)
	Tokens(ctx context.Context) (schema.TokenHealthResponse, error)
	Providers(ctx context.Context) ([]schema.ProviderInfo, error)
	Sessions(ctx context.Context, limit, offset int) (schema.SessionListResponse, error)
	Session(ctx context.Context, id string) (schema.SessionResponse, error)
	DeleteSession(ctx context.Context, id string) error
}

type Config struct {
	API    API
	Panels PanelStore
	// Refresh is the meta-refresh period of the overview and token pages.
	Refresh  time.Duration
	Location *time.Location
	Logger   zerolog.Logger
	Now      func() time.Time
}

type Server struct {
	api      API
	panels   PanelStore
	refresh  time.Duration
	loc      *time.Location
	logger   zerolog.Logger
	now      func() time.Time
	markdown *Markdown
	pages    map[string]*template.Template
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Panels == nil {
		cfg.Panels = NewMemoryPanelStore(24 * time.Hour)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		api:      cfg.API,
		panels:   cfg.Panels,
		refresh:  cfg.Refresh,
		loc:      cfg.Location,
		logger:   cfg.Logger.With().Str("component", "dashboard").Logger(),
		now:      cfg.Now,
		markdown: NewMarkdown(),
	}
	pages, err := s.parseTemplates()
	if err != nil {
		return nil, err
	}
	s.pages = pages
	return s, nil
}

func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"datetime": func(t time.Time) string { return FormatDateTime(t, s.loc) },
		"datetimep": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return FormatDateTime(*t, s.loc)
		},
		"date": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return FormatDate(*t, s.loc)
		},
		"relative": func(t time.Time) string { return RelativeTime(t, s.now()) },
		"shortid":  ShortID,
		"title":    Title,
		"markdown": s.markdown.Render,
		"renew":    RenewURL,
		"ms": func(v *int64) string {
			if v == nil {
				return "-"
			}
			return strconv.FormatInt(*v, 10) + " ms"
		},
		"days": func(v *int) string {
			if v == nil {
				return "-"
			}
			return strconv.Itoa(*v)
		},
		"isUser": func(r domain.Role) bool { return r == domain.RoleUser },
	}
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, err
	}
	names := []string{"overview", "providers", "tokens", "sessions", "session", "confirm_delete", "chat"}
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		t, err := template.Must(base.Clone()).ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.overview)
	mux.HandleFunc("GET /providers", s.providers)
	mux.HandleFunc("GET /tokens", s.tokens)
	mux.HandleFunc("GET /sessions", s.sessions)
	mux.HandleFunc("GET /sessions/{id}", s.session)
	mux.HandleFunc("GET /sessions/{id}/delete", s.confirmDelete)
	mux.HandleFunc("POST /sessions/{id}/delete", s.deleteSession)
	mux.HandleFunc("GET /chat", s.chat)
	mux.HandleFunc("POST /chat/send", s.chatSend)
	mux.HandleFunc("POST /chat/clear", s.chatClear)
	mux.HandleFunc("POST /chat/provider", s.chatProvider)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type page struct {
	Title   string
	Active  string
	Refresh int
	Error   string
	Data    any
}

func (s *Server) render(w http.ResponseWriter, status int, name string, p page) {
	t, ok := s.pages[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", p); err != nil {
		s.logger.Error().Err(err).Str("page", name).Msg("render failed")
	}
}

func (s *Server) refreshSeconds() int {
	return int(s.refresh / time.Second)
}

// failure turns a client error into the text shown in an error panel.
func failure(what string, err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("Failed to load %s: %s", what, apiErr.Message)
	}
	return fmt.Sprintf("Failed to load %s: %v", what, err)
}

type componentView struct {
	Name   string
	Health domain.ComponentHealth
	Badge  Badge
}

type overviewData struct {
	Status     domain.HealthStatus
	Headline   string
	Badge      Badge
	Version    string
	Timestamp  time.Time
	Components []componentView
	Alerts     []TokenAlert
	TokenError string
}

func components(m map[string]domain.ComponentHealth) []componentView {
	out := make([]componentView, 0, len(m))
	for name, c := range m {
		out = append(out, componentView{Name: name, Health: c, Badge: ComponentBadge(c.Status)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	var (
		health    schema.DetailedHealthResponse
		tokens    schema.TokenHealthResponse
		healthErr error
		tokenErr  error
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		health, healthErr = s.api.DetailedHealth(ctx)
		return nil
	})
	g.Go(func() error {
		tokens, tokenErr = s.api.Tokens(ctx)
		return nil
	})
	_ = g.Wait()

	p := page{Title: "System status", Active: "overview", Refresh: s.refreshSeconds()}
	if healthErr != nil {
		p.Error = failure("system status", healthErr)
		s.render(w, http.StatusOK, "overview", p)
		return
	}
	data := overviewData{
		Status:     health.Status,
		Headline:   HealthHeadline(health.Status),
		Badge:      HealthBadge(health.Status),
		Version:    health.Version,
		Timestamp:  health.Timestamp,
		Components: components(health.Components),
	}
	if tokenErr != nil {
		data.TokenError = failure("token status", tokenErr)
	} else {
		data.Alerts = TokenAlerts(tokens)
	}
	p.Data = data
	s.render(w, http.StatusOK, "overview", p)
}

type providerView struct {
	Info  schema.ProviderInfo
	Badge Badge
	Error string
}

func (s *Server) providers(w http.ResponseWriter, r *http.Request) {
	p := page{Title: "Providers", Active: "providers"}
	list, err := s.api.Providers(r.Context())
	if err != nil {
		p.Error = failure("providers", err)
		s.render(w, http.StatusOK, "providers", p)
		return
	}
	// Missing health only hides the status badges.
	health, herr := s.api.DetailedHealth(r.Context())
	views := make([]providerView, 0, len(list))
	for _, info := range list {
		v := providerView{Info: info, Badge: Badge{Variant: VariantOutline, Label: "unknown"}}
		if herr == nil {
			if c, ok := health.Components[info.Name]; ok {
				v.Badge = ComponentBadge(c.Status)
				v.Error = c.Error
			}
		}
		views = append(views, v)
	}
	p.Data = views
	s.render(w, http.StatusOK, "providers", p)
}

type tokensData struct {
	Entries []TokenEntry
	Alerts  []TokenAlert
}

func (s *Server) tokens(w http.ResponseWriter, r *http.Request) {
	p := page{Title: "Tokens", Active: "tokens", Refresh: s.refreshSeconds()}
	tokens, err := s.api.Tokens(r.Context())
	if err != nil {
		p.Error = failure("token status", err)
		s.render(w, http.StatusOK, "tokens", p)
		return
	}
	p.Data = tokensData{Entries: TokenEntries(tokens), Alerts: TokenAlerts(tokens)}
	s.render(w, http.StatusOK, "tokens", p)
}

type sessionsData struct {
	Sessions []schema.SessionResponse
	Total    int
	Page     int
	Prev     int
	Next     int
}

func (s *Server) sessions(w http.ResponseWriter, r *http.Request) {
	p := page{Title: "Sessions", Active: "sessions"}
	n, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if n < 1 {
		n = 1
	}
	list, err := s.api.Sessions(r.Context(), sessionsPerPage, (n-1)*sessionsPerPage)
	if err != nil {
		p.Error = failure("sessions", err)
		s.render(w, http.StatusOK, "sessions", p)
		return
	}
	data := sessionsData{Sessions: list.Sessions, Total: list.Total, Page: n}
	if n > 1 {
		data.Prev = n - 1
	}
	if n*sessionsPerPage < list.Total {
		data.Next = n + 1
	}
	p.Data = data
	s.render(w, http.StatusOK, "sessions", p)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p := page{Title: "Session " + ShortID(id), Active: "sessions"}
	sess, err := s.api.Session(r.Context(), id)
	if err != nil {
		status := http.StatusOK
		if client.IsCode(err, apperr.CodeSessionNotFound) {
			status = http.StatusNotFound
			p.Error = "Session not found: " + id
		} else {
			p.Error = failure("session", err)
		}
		s.render(w, status, "session", p)
		return
	}
	p.Data = sess
	s.render(w, http.StatusOK, "session", p)
}

func (s *Server) confirmDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.render(w, http.StatusOK, "confirm_delete", page{Title: "Delete session", Active: "sessions", Data: id})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.api.DeleteSession(r.Context(), id); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("delete failed")
		p := page{Title: "Delete session", Active: "sessions", Data: id}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			p.Error = "Failed to delete session: " + apiErr.Message
		} else {
			p.Error = "Failed to delete session: " + err.Error()
		}
		s.render(w, http.StatusOK, "confirm_delete", p)
		return
	}
	http.Redirect(w, r, "/sessions", http.StatusSeeOther)
}

type chatData struct {
	Panel     *ChatPanel
	Providers []schema.ProviderInfo
	Models    []string
}

// panelID reads the browser's panel cookie, issuing one when absent.
func (s *Server) panelID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(panelCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     panelCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	p := page{Title: "Chat", Active: "chat"}
	id := s.panelID(w, r)
	panel, err := s.panels.Load(r.Context(), id)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load chat panel")
		panel = &ChatPanel{}
	}
	list, err := s.api.Providers(r.Context())
	if err != nil {
		p.Error = failure("providers", err)
	}
	panel.SelectDefaults(list)
	if err := s.panels.Save(r.Context(), id, panel); err != nil {
		s.logger.Warn().Err(err).Msg("save chat panel")
	}
	data := chatData{Panel: panel, Providers: list}
	for _, info := range list {
		if info.Name == panel.Provider {
			data.Models = info.Models
		}
	}
	p.Data = data
	s.render(w, http.StatusOK, "chat", p)
}

func (s *Server) chatSend(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.FormValue("message"))
	if text == "" {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}
	id := s.panelID(w, r)
	panel, err := s.panels.Load(r.Context(), id)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load chat panel")
		panel = &ChatPanel{}
	}
	panel.Send(r.Context(), s.api, text, s.now)
	if err := s.panels.Save(r.Context(), id, panel); err != nil {
		s.logger.Warn().Err(err).Msg("save chat panel")
	}
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

func (s *Server) chatClear(w http.ResponseWriter, r *http.Request) {
	id := s.panelID(w, r)
	panel, err := s.panels.Load(r.Context(), id)
	if err == nil {
		panel.Clear()
		err = s.panels.Save(r.Context(), id, panel)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("clear chat panel")
	}
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

func (s *Server) chatProvider(w http.ResponseWriter, r *http.Request) {
	id := s.panelID(w, r)
	panel, err := s.panels.Load(r.Context(), id)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load chat panel")
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}
	list, err := s.api.Providers(r.Context())
	if err == nil {
		name := r.FormValue("provider")
		if name != "" && name != panel.Provider {
			panel.SetProvider(name, list)
		} else if model := r.FormValue("model"); model != "" {
			panel.SetModel(model, list)
		}
		err = s.panels.Save(r.Context(), id, panel)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("select provider")
	}
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}
