/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

func (a *API) handlePlaylistsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"playlists": a.store.Playlists()})
}

func (a *API) handlePlaylistGet(w http.ResponseWriter, r *http.Request) {
	pl, err := a.store.Playlist(chi.URLParam(r, "playlistID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (a *API) handlePlaylistCreate(w http.ResponseWriter, r *http.Request) {
	var pl models.Playlist
	if err := json.NewDecoder(r.Body).Decode(&pl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pl.ID = ""
	saved, err := a.store.SavePlaylist(pl)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	a.refreshScheduling()
	writeJSON(w, http.StatusCreated, saved)
}

func (a *API) handlePlaylistUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")
	if _, err := a.store.Playlist(id); err != nil {
		writeDomainError(w, err)
		return
	}
	var pl models.Playlist
	if err := json.NewDecoder(r.Body).Decode(&pl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pl.ID = id
	saved, err := a.store.SavePlaylist(pl)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	a.refreshScheduling()
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handlePlaylistDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playlistID")
	if err := a.store.DeletePlaylist(id); err != nil {
		writeDomainError(w, err)
		return
	}
	a.refreshScheduling()
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (a *API) handlePlaylistPlay(w http.ResponseWriter, r *http.Request) {
	if err := a.arbiter.PlayPlaylist(r.Context(), chi.URLParam(r, "playlistID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.arbiter.State())
}

func (a *API) handlePlaylistControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.arbiter.PlaylistCommand(r.Context(), req.Action); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.arbiter.State())
}

func (a *API) handleSchedulesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": a.store.Schedules()})
}

func (a *API) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	sched, err := a.store.Schedule(chi.URLParam(r, "scheduleID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (a *API) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	var sched models.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sched.ID = ""
	saved, err := a.store.SaveSchedule(sched)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	a.refreshScheduling()
	writeJSON(w, http.StatusCreated, saved)
}

func (a *API) handleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scheduleID")
	if _, err := a.store.Schedule(id); err != nil {
		writeDomainError(w, err)
		return
	}
	var sched models.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sched.ID = id
	saved, err := a.store.SaveSchedule(sched)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	a.refreshScheduling()
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scheduleID")
	if err := a.store.DeleteSchedule(id); err != nil {
		writeDomainError(w, err)
		return
	}
	a.refreshScheduling()
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (a *API) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	status := a.engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduler": map[string]any{
			"active":      status.ScheduleID != "",
			"playlist_id": status.Target.PlaylistID,
			"schedule_id": status.ScheduleID,
		},
		"fallback": status.Fallback,
	})
}

func (a *API) handleFallbackGet(w http.ResponseWriter, r *http.Request) {
	fb := a.store.Fallback()
	if fb == nil {
		writeJSON(w, http.StatusOK, map[string]any{"fallback": nil, "homepage": a.homepage})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fallback": fb, "homepage": a.homepage})
}

func (a *API) handleFallbackSet(w http.ResponseWriter, r *http.Request) {
	var fb models.FallbackConfig
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.store.SetFallback(fb); err != nil {
		writeDomainError(w, err)
		return
	}
	a.refreshScheduling()
	writeJSON(w, http.StatusOK, fb)
}

func (a *API) handleFallbackClear(w http.ResponseWriter, r *http.Request) {
	if err := a.store.ClearFallback(); err != nil {
		writeDomainError(w, err)
		return
	}
	a.refreshScheduling()
	writeJSON(w, http.StatusOK, map[string]string{"status": "fallback cleared"})
}
