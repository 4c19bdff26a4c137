/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the device control surface over HTTP and websocket.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_signage/internal/arbiter"
	"github.com/friendsincode/grimnir_signage/internal/auth"
	"github.com/friendsincode/grimnir_signage/internal/broadcast"
	"github.com/friendsincode/grimnir_signage/internal/health"
	"github.com/friendsincode/grimnir_signage/internal/logbuffer"
	"github.com/friendsincode/grimnir_signage/internal/media"
	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/scheduler"
	"github.com/friendsincode/grimnir_signage/internal/store"
)

// API wires the handlers to the device components.
type API struct {
	arbiter      *arbiter.Arbiter
	engine       *scheduler.Engine
	store        *store.Store
	tags         *store.TagStore
	index        *media.Index
	watcher      *media.Watcher
	monitor      *health.Monitor
	broadcaster  *broadcast.Broadcaster
	tokens       *auth.Manager
	passwordHash string
	homepage     string
	maxUpload    int64
	logBuf       *logbuffer.Buffer
	logger       zerolog.Logger
}

// New builds the API.
func New(arb *arbiter.Arbiter, engine *scheduler.Engine, st *store.Store, tags *store.TagStore, index *media.Index, watcher *media.Watcher, monitor *health.Monitor, broadcaster *broadcast.Broadcaster, tokens *auth.Manager, passwordHash, homepage string, maxUpload int64, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		arbiter:      arb,
		engine:       engine,
		store:        st,
		tags:         tags,
		index:        index,
		watcher:      watcher,
		monitor:      monitor,
		broadcaster:  broadcaster,
		tokens:       tokens,
		passwordHash: passwordHash,
		homepage:     homepage,
		maxUpload:    maxUpload,
		logBuf:       logBuf,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the API on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Post("/api/auth/login", a.handleLogin)
	r.Get("/api/health", a.handleHealth)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Middleware(a.tokens))

		pr.Get("/api/state", a.handleState)
		pr.Post("/api/web/navigate", a.handleWebNavigate)
		pr.Post("/api/web/action", a.handleWebAction)
		pr.Post("/api/display/blank", a.handleDisplayBlank)

		pr.Route("/api/media", func(r chi.Router) {
			r.Get("/", a.handleMediaList)
			r.Get("/sources", a.handleMediaSources)
			r.Post("/upload", a.handleMediaUpload)
			r.Post("/refresh", a.handleMediaRefresh)
			r.Get("/item", a.handleMediaGet)
			r.Delete("/item", a.handleMediaDelete)
			r.Put("/item/tags", a.handleMediaTags)
			r.Post("/item/play", a.handleMediaPlay)
		})

		pr.Route("/api/playlists", func(r chi.Router) {
			r.Get("/", a.handlePlaylistsList)
			r.Post("/", a.handlePlaylistCreate)
			r.Post("/control", a.handlePlaylistControl)
			r.Route("/{playlistID}", func(r chi.Router) {
				r.Get("/", a.handlePlaylistGet)
				r.Put("/", a.handlePlaylistUpdate)
				r.Delete("/", a.handlePlaylistDelete)
				r.Post("/play", a.handlePlaylistPlay)
			})
		})

		pr.Route("/api/schedules", func(r chi.Router) {
			r.Get("/", a.handleSchedulesList)
			r.Post("/", a.handleScheduleCreate)
			r.Route("/{scheduleID}", func(r chi.Router) {
				r.Get("/", a.handleScheduleGet)
				r.Put("/", a.handleScheduleUpdate)
				r.Delete("/", a.handleScheduleDelete)
			})
		})

		pr.Route("/api/scheduler", func(r chi.Router) {
			r.Get("/status", a.handleSchedulerStatus)
			r.Get("/fallback", a.handleFallbackGet)
			r.Post("/fallback", a.handleFallbackSet)
			r.Delete("/fallback", a.handleFallbackClear)
		})

		pr.Get("/api/system/logs", a.handleSystemLogs)
		pr.Get("/ws", a.handleWebsocket)
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := auth.CheckPassword(a.passwordHash, req.Password); err != nil {
		a.logger.Warn().Str("remote", r.RemoteAddr).Msg("failed login attempt")
		writeError(w, http.StatusUnauthorized, "bad credentials")
		return
	}
	token, expires, err := a.tokens.Issue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expires,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := a.monitor.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"degraded": a.store.Degraded(),
		"health":   snap,
	})
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	state := a.arbiter.State()
	state.Uptime = a.monitor.Snapshot(r.Context()).Uptime
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleWebNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.arbiter.NavigateWeb(r.Context(), req.URL); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.arbiter.State())
}

func (a *API) handleWebAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cmd string `json:"cmd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action, err := models.ParseWebAction(req.Cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := a.arbiter.WebAction(r.Context(), action); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cmd": string(action)})
}

func (a *API) handleDisplayBlank(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.arbiter.SetBlank(r.Context(), req.On); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.arbiter.State())
}

func (a *API) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	a.broadcaster.ServeClient(r.Context(), conn)
}

// refreshScheduling follows every store mutation: the engine re-resolves the
// target, and the arbiter reconsiders it in case the active playlist's
// content changed without the target itself changing.
func (a *API) refreshScheduling() {
	a.engine.RequestRefresh()
	a.arbiter.Resync()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrMediaUnresolved):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidMode):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrAuth):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrStoreCorrupt):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
