/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists playlists, schedules and the fallback rule as a
// single JSON document, plus media tags as a second document. Every write
// validates, marshals the whole document and replaces the file atomically
// via a temp file and rename. A corrupt document on disk is left in place;
// the store starts empty and reports itself degraded until the next
// successful write.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

type document struct {
	Playlists []models.Playlist      `json:"playlists"`
	Schedules []models.Schedule      `json:"schedules"`
	Fallback  *models.FallbackConfig `json:"fallback,omitempty"`
}

// Store owns the playlist document on disk.
type Store struct {
	mu       sync.RWMutex
	path     string
	doc      document
	degraded bool
	log      zerolog.Logger
}

// New loads the document at path. A missing file yields an empty store; a
// file that fails to parse yields an empty, degraded store with the file
// untouched on disk.
func New(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log.With().Str("component", "store").Logger()}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.doc); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("playlist store corrupt, starting empty")
		s.doc = document{}
		s.degraded = true
		return s, nil
	}
	return s, nil
}

// Degraded reports whether the last load or save left the on-disk document
// out of sync with memory.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Playlists returns a copy of all playlists.
func (s *Store) Playlists() []models.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Playlist, len(s.doc.Playlists))
	for i, p := range s.doc.Playlists {
		out[i] = clonePlaylist(p)
	}
	return out
}

// Playlist returns one playlist by id.
func (s *Store) Playlist(id string) (models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.doc.Playlists {
		if p.ID == id {
			return clonePlaylist(p), nil
		}
	}
	return models.Playlist{}, fmt.Errorf("%w: playlist %s", models.ErrNotFound, id)
}

// SavePlaylist inserts or replaces a playlist. A missing id is minted.
func (s *Store) SavePlaylist(p models.Playlist) (models.Playlist, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return models.Playlist{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cloneDoc()
	replaced := false
	for i, existing := range next.Playlists {
		if existing.ID == p.ID {
			next.Playlists[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		next.Playlists = append(next.Playlists, p)
	}
	if err := s.commit(next); err != nil {
		return models.Playlist{}, err
	}
	return clonePlaylist(p), nil
}

// DeletePlaylist removes a playlist and any schedules referencing it. It
// refuses to delete a playlist the fallback rule points at.
func (s *Store) DeletePlaylist(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cloneDoc()
	found := false
	kept := next.Playlists[:0]
	for _, p := range next.Playlists {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("%w: playlist %s", models.ErrNotFound, id)
	}
	if next.Fallback != nil && next.Fallback.Mode == models.FallbackPlaylist && next.Fallback.PlaylistID == id {
		return fmt.Errorf("%w: playlist %s is the fallback target", models.ErrConfig, id)
	}
	next.Playlists = kept
	schedules := next.Schedules[:0]
	for _, sched := range next.Schedules {
		if sched.PlaylistID == id {
			continue
		}
		schedules = append(schedules, sched)
	}
	next.Schedules = schedules
	return s.commit(next)
}

// Schedules returns a copy of all schedules.
func (s *Store) Schedules() []models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Schedule(nil), s.doc.Schedules...)
}

// Schedule returns one schedule by id.
func (s *Store) Schedule(id string) (models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sched := range s.doc.Schedules {
		if sched.ID == id {
			return sched, nil
		}
	}
	return models.Schedule{}, fmt.Errorf("%w: schedule %s", models.ErrNotFound, id)
}

// SaveSchedule inserts or replaces a schedule. The referenced playlist must
// already exist.
func (s *Store) SaveSchedule(sched models.Schedule) (models.Schedule, error) {
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	if err := sched.Validate(); err != nil {
		return models.Schedule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playlistExistsLocked(sched.PlaylistID) {
		return models.Schedule{}, fmt.Errorf("%w: schedule %s references unknown playlist %s", models.ErrConfig, sched.ID, sched.PlaylistID)
	}
	next := s.cloneDoc()
	replaced := false
	for i, existing := range next.Schedules {
		if existing.ID == sched.ID {
			next.Schedules[i] = sched
			replaced = true
			break
		}
	}
	if !replaced {
		next.Schedules = append(next.Schedules, sched)
	}
	if err := s.commit(next); err != nil {
		return models.Schedule{}, err
	}
	return sched, nil
}

// DeleteSchedule removes one schedule.
func (s *Store) DeleteSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cloneDoc()
	kept := next.Schedules[:0]
	found := false
	for _, sched := range next.Schedules {
		if sched.ID == id {
			found = true
			continue
		}
		kept = append(kept, sched)
	}
	if !found {
		return fmt.Errorf("%w: schedule %s", models.ErrNotFound, id)
	}
	next.Schedules = kept
	return s.commit(next)
}

// Fallback returns the fallback rule, or nil when none is configured.
func (s *Store) Fallback() *models.FallbackConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc.Fallback == nil {
		return nil
	}
	fb := *s.doc.Fallback
	return &fb
}

// SetFallback validates and persists the fallback rule. A playlist fallback
// must reference an existing playlist.
func (s *Store) SetFallback(fb models.FallbackConfig) error {
	if err := fb.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fb.Mode == models.FallbackPlaylist && !s.playlistExistsLocked(fb.PlaylistID) {
		return fmt.Errorf("%w: fallback references unknown playlist %s", models.ErrConfig, fb.PlaylistID)
	}
	next := s.cloneDoc()
	next.Fallback = &fb
	return s.commit(next)
}

// ClearFallback removes the fallback rule.
func (s *Store) ClearFallback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cloneDoc()
	next.Fallback = nil
	return s.commit(next)
}

func (s *Store) playlistExistsLocked(id string) bool {
	for _, p := range s.doc.Playlists {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) cloneDoc() document {
	next := document{
		Playlists: make([]models.Playlist, len(s.doc.Playlists)),
		Schedules: append([]models.Schedule(nil), s.doc.Schedules...),
	}
	for i, p := range s.doc.Playlists {
		next.Playlists[i] = clonePlaylist(p)
	}
	if s.doc.Fallback != nil {
		fb := *s.doc.Fallback
		next.Fallback = &fb
	}
	return next
}

// commit writes the document atomically, then swaps it into memory. The
// in-memory document is only replaced after the rename succeeds.
func (s *Store) commit(next document) error {
	if err := writeAtomic(s.path, next); err != nil {
		s.degraded = true
		return fmt.Errorf("%w: %v", models.ErrStoreCorrupt, err)
	}
	s.doc = next
	s.degraded = false
	return nil
}

func clonePlaylist(p models.Playlist) models.Playlist {
	out := p
	out.Items = append([]models.PlaylistItem(nil), p.Items...)
	return out
}

// writeAtomic marshals v and replaces path via a temp file in the same
// directory so the rename never crosses filesystems.
func writeAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
