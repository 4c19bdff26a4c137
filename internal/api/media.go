/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/friendsincode/grimnir_signage/internal/media"
)

// parseTagList accepts either a JSON array or a comma-separated list.
func parseTagList(raw string) []string {
	var fromJSON []string
	if err := json.Unmarshal([]byte(raw), &fromJSON); err == nil {
		return fromJSON
	}
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (a *API) handleMediaList(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	tag := r.URL.Query().Get("tag")
	items := a.index.Items(source, tag)
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"count":     len(items),
		"last_scan": a.index.LastScan(),
	})
}

func (a *API) handleMediaSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": a.index.Sources()})
}

func (a *API) handleMediaGet(w http.ResponseWriter, r *http.Request) {
	item, err := a.index.Resolve(r.URL.Query().Get("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleMediaDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if err := a.index.Delete(id); err != nil {
		writeDomainError(w, err)
		return
	}
	a.watcher.Kick()
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (a *API) handleMediaTags(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if _, err := a.index.Resolve(id); err != nil {
		writeDomainError(w, err)
		return
	}
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.tags.SetTags(id, req.Tags); err != nil {
		writeDomainError(w, err)
		return
	}
	item, err := a.index.Resolve(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleMediaPlay(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			id = req.ID
		}
	}
	if err := a.arbiter.PlayMedia(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.arbiter.State())
}

func (a *API) handleMediaRefresh(w http.ResponseWriter, r *http.Request) {
	a.watcher.Kick()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rescan scheduled"})
}

// handleMediaUpload stores a file under the local root, optionally inside a
// folder, with optional initial tags. Uploads never overwrite.
func (a *API) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	root, ok := a.index.Root("local")
	if !ok {
		writeError(w, http.StatusInternalServerError, "local media root not mounted")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field missing")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	if _, ok := media.Classify(name); !ok {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}

	rel := name
	if folder := strings.Trim(r.FormValue("folder"), "/"); folder != "" {
		rel = path.Join(folder, name)
	}
	dest, err := media.SafeJoin(root, rel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := os.Stat(dest); err == nil {
		writeError(w, http.StatusConflict, "file already exists")
		return
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "create folder failed")
		return
	}

	out, err := os.CreateTemp(filepath.Dir(dest), ".upload.*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "write failed")
		return
	}
	tmpName := out.Name()
	written, err := io.Copy(out, file)
	closeErr := out.Close()
	if err != nil || closeErr != nil {
		os.Remove(tmpName)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusInternalServerError, "write failed")
		return
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		writeError(w, http.StatusInternalServerError, "write failed")
		return
	}

	id := "local:" + filepath.ToSlash(rel)
	if rawTags := r.FormValue("tags"); rawTags != "" {
		if err := a.tags.SetTags(id, parseTagList(rawTags)); err != nil {
			a.logger.Warn().Err(err).Str("media", id).Msg("tag save failed after upload")
		}
	}
	a.watcher.Kick()
	a.logger.Info().Str("media", id).Int64("bytes", written).Msg("media uploaded")
	writeJSON(w, http.StatusCreated, map[string]any{
		"identifier": id,
		"size":       written,
	})
}
