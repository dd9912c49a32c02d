package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/common"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat             = time.RFC3339
	sessionCtxKey   ctxKey = "session"
	maxJSONBodySize        = 1 << 16
	SessionCookie          = "dlz_session"
	SessionHeader          = "X-Session-ID"
)

type Handler struct {
	sessions    *usecase.SessionService
	zones       *usecase.ZoneService
	secrets     ports.SecretStore
	metrics     http.Handler
	logger      *common.Logger
	corsOrigins []string
}

type HandlerOption func(*Handler)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) HandlerOption {
	return func(handler *Handler) {
		handler.metrics = h
	}
}

func WithLogger(logger *common.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithCORSOrigins allows browsers on the given origins to call the API with
// the session cookie.
func WithCORSOrigins(origins []string) HandlerOption {
	return func(h *Handler) {
		h.corsOrigins = origins
	}
}

func NewHandler(sessions *usecase.SessionService, zones *usecase.ZoneService, secrets ports.SecretStore, opts ...HandlerOption) *Handler {
	h := &Handler{
		sessions: sessions,
		zones:    zones,
		secrets:  secrets,
		logger:   common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	if len(h.corsOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   h.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", SessionHeader},
			AllowCredentials: true,
		}).Handler)
	}

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Get("/v1/sandboxes", h.listSandboxes)
	r.Post("/v1/sessions", h.startSession)

	r.Group(func(sr chi.Router) {
		sr.Use(h.requireSession)
		sr.Get("/v1/sessions/current", h.currentSession)
		sr.Delete("/v1/sessions/current", h.endSession)

		sr.Get("/v1/zones/source/files", h.zoneFiles(domain.ZoneSource))
		sr.Get("/v1/zones/destination/files", h.zoneFiles(domain.ZoneDestination))
		sr.Get("/v1/zones/{kind}/files", h.zoneFilesByParam)
	})

	return r
}

type startSessionRequest struct {
	Sandbox string `json:"sandbox"`
	VPN     bool   `json:"vpn"`
}

type sessionResponse struct {
	ID         string        `json:"id"`
	Sandbox    string        `json:"sandbox"`
	VPN        bool          `json:"vpn"`
	CreatedAt  string        `json:"created_at"`
	LastSeenAt string        `json:"last_seen_at"`
	Cached     cachedSummary `json:"cached"`
}

// cachedSummary reports which credentials the session holds, never their values.
type cachedSummary struct {
	Token       bool `json:"token"`
	Source      bool `json:"source"`
	Destination bool `json:"destination"`
}

type fileResponse struct {
	Name         string  `json:"name"`
	CreationTime string  `json:"creation_time"`
	LastModified string  `json:"last_modified"`
	Size         float64 `json:"size"`
}

func (h *Handler) listSandboxes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sandboxes": h.secrets.Sandboxes()})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

	var req startSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}

	sess, err := h.sessions.Start(r.Context(), sessionIDFromRequest(r), req.Sandbox, req.VPN)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	setSessionCookie(w, r, sess.ID)
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(sessionFromContext(r.Context())))
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	deleted, err := h.sessions.End(r.Context(), sess.ID)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	clearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) zoneFiles(kind domain.ZoneKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.listZone(w, r, kind)
	}
}

func (h *Handler) zoneFilesByParam(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseZoneKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	h.listZone(w, r, kind)
}

func (h *Handler) listZone(w http.ResponseWriter, r *http.Request, kind domain.ZoneKind) {
	sess := sessionFromContext(r.Context())
	records, err := h.zones.List(r.Context(), &sess, kind)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	data := make([]fileResponse, 0, len(records))
	for _, rec := range records {
		data = append(data, toFileResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sessionIDFromRequest(r)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "session_required", "start a session first")
			return
		}

		sess, err := h.sessions.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired) {
				clearSessionCookie(w, r)
			}
			h.handleDomainError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionCtxKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		event := h.logger.Info()
		if ww.Status() >= http.StatusInternalServerError {
			event = h.logger.Warn()
		}
		event.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSandbox), errors.Is(err, domain.ErrInvalidZoneKind):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrProxyUnavailable):
		writeError(w, http.StatusBadRequest, "proxy_unavailable", err.Error())
	case errors.Is(err, domain.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session_expired", "session expired, start a new one")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "session_required", "start a session first")
	case errors.Is(err, domain.ErrUnknownSandbox):
		writeError(w, http.StatusNotFound, "unknown_sandbox", err.Error())
	case errors.Is(err, domain.ErrAuthorization):
		h.logUpstream(r, err)
		writeError(w, http.StatusForbidden, "authorization_failed", "landing zone access was denied")
	case errors.Is(err, domain.ErrAuthentication):
		h.logUpstream(r, err)
		writeError(w, http.StatusBadGateway, "authentication_failed", "identity service rejected the client credentials")
	case errors.Is(err, domain.ErrUpstream):
		h.logUpstream(r, err)
		writeError(w, http.StatusBadGateway, "upstream_failed", "upstream service failed")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *Handler) logUpstream(r *http.Request, err error) {
	h.logger.Warn().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("upstream call failed")
}

func toSessionResponse(sess domain.Session) sessionResponse {
	return sessionResponse{
		ID:         sess.ID,
		Sandbox:    sess.SandboxName,
		VPN:        sess.Route.UseProxy,
		CreatedAt:  sess.CreatedAt.UTC().Format(timeFormat),
		LastSeenAt: sess.LastSeenAt.UTC().Format(timeFormat),
		Cached: cachedSummary{
			Token:       sess.Cache.Token != nil,
			Source:      sess.Cache.Source != nil,
			Destination: sess.Cache.Destination != nil,
		},
	}
}

func toFileResponse(rec domain.BlobRecord) fileResponse {
	return fileResponse{
		Name:         rec.Name,
		CreationTime: formatTime(rec.CreationTime),
		LastModified: formatTime(rec.LastModified),
		Size:         rec.SizeMB,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func sessionIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func sessionFromContext(ctx context.Context) domain.Session {
	sess, _ := ctx.Value(sessionCtxKey).(domain.Session)
	return sess
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func openapiSpec() map[string]any {
	sessionScoped := []map[string]any{
		{"sessionCookie": []string{}},
		{"sessionHeader": []string{}},
	}
	listing := func(summary string) map[string]any {
		return map[string]any{"get": map[string]any{"summary": summary, "security": sessionScoped}}
	}
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "dlzbrowser",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"sessionCookie": map[string]any{"type": "apiKey", "in": "cookie", "name": SessionCookie},
				"sessionHeader": map[string]any{"type": "apiKey", "in": "header", "name": SessionHeader},
			},
		},
		"paths": map[string]any{
			"/v1/sandboxes": map[string]any{
				"get": map[string]any{"summary": "List configured sandboxes"},
			},
			"/v1/sessions": map[string]any{
				"post": map[string]any{"summary": "Start or switch a session"},
			},
			"/v1/sessions/current": map[string]any{
				"get":    map[string]any{"summary": "Describe the current session", "security": sessionScoped},
				"delete": map[string]any{"summary": "End the current session", "security": sessionScoped},
			},
			"/v1/zones/source/files":      listing("List files in the source landing zone"),
			"/v1/zones/destination/files": listing("List files in the destination landing zone"),
			"/v1/zones/{kind}/files":      listing("List files in a landing zone"),
		},
	}
}
