/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playlists.json")
	s, err := New(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, path
}

func TestPlaylistRoundTrip(t *testing.T) {
	s, path := testStore(t)

	saved, err := s.SavePlaylist(models.Playlist{
		Name: "lobby loop",
		Loop: true,
		Items: []models.PlaylistItem{
			{MediaID: "local:ads/one.mp4"},
			{MediaID: "local:ads/two.jpg", Duration: 15},
		},
	})
	if err != nil {
		t.Fatalf("SavePlaylist: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected a minted id")
	}

	reloaded, err := New(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := reloaded.Playlist(saved.ID)
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	if got.Name != "lobby loop" || !got.Loop || len(got.Items) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Items[1].Duration != 15 {
		t.Errorf("duration override lost: %+v", got.Items[1])
	}
}

func TestScheduleRequiresExistingPlaylist(t *testing.T) {
	s, _ := testStore(t)

	start, _ := models.ParseTimeOfDay("09:00")
	end, _ := models.ParseTimeOfDay("17:00")
	_, err := s.SaveSchedule(models.Schedule{PlaylistID: "nope", Start: start, End: end})
	if !errors.Is(err, models.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}

	p, err := s.SavePlaylist(models.Playlist{Name: "day"})
	if err != nil {
		t.Fatalf("SavePlaylist: %v", err)
	}
	if _, err := s.SaveSchedule(models.Schedule{PlaylistID: p.ID, Start: start, End: end}); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}
}

func TestDeletePlaylistCascadesSchedules(t *testing.T) {
	s, _ := testStore(t)

	p, _ := s.SavePlaylist(models.Playlist{Name: "day"})
	start, _ := models.ParseTimeOfDay("09:00")
	end, _ := models.ParseTimeOfDay("17:00")
	if _, err := s.SaveSchedule(models.Schedule{PlaylistID: p.ID, Start: start, End: end}); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}

	if err := s.DeletePlaylist(p.ID); err != nil {
		t.Fatalf("DeletePlaylist: %v", err)
	}
	if got := s.Schedules(); len(got) != 0 {
		t.Errorf("expected schedules removed, got %d", len(got))
	}
	if _, err := s.Playlist(p.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePlaylistRefusedWhenFallbackTarget(t *testing.T) {
	s, _ := testStore(t)

	p, _ := s.SavePlaylist(models.Playlist{Name: "safety"})
	if err := s.SetFallback(models.FallbackConfig{Mode: models.FallbackPlaylist, PlaylistID: p.ID}); err != nil {
		t.Fatalf("SetFallback: %v", err)
	}
	if err := s.DeletePlaylist(p.ID); !errors.Is(err, models.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestCorruptDocumentStartsDegraded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlists.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Degraded() {
		t.Error("expected degraded store")
	}
	// the corrupt file must survive until the next successful write
	raw, _ := os.ReadFile(path)
	if string(raw) != "{not json" {
		t.Errorf("corrupt file was rewritten: %q", raw)
	}

	if _, err := s.SavePlaylist(models.Playlist{Name: "fresh"}); err != nil {
		t.Fatalf("SavePlaylist: %v", err)
	}
	if s.Degraded() {
		t.Error("expected degraded cleared after successful write")
	}
}

func TestMidnightSpanRejected(t *testing.T) {
	s, _ := testStore(t)
	p, _ := s.SavePlaylist(models.Playlist{Name: "night"})
	start, _ := models.ParseTimeOfDay("22:00")
	end, _ := models.ParseTimeOfDay("02:00")
	if _, err := s.SaveSchedule(models.Schedule{PlaylistID: p.ID, Start: start, End: end}); !errors.Is(err, models.ErrConfig) {
		t.Fatalf("expected ErrConfig for midnight span, got %v", err)
	}
}

func TestTagStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	ts, err := NewTagStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTagStore: %v", err)
	}
	if err := ts.SetTags("local:a.jpg", []string{"lobby", "promo", "lobby", ""}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}

	reloaded, err := NewTagStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.Tags("local:a.jpg")
	if len(got) != 2 || got[0] != "lobby" || got[1] != "promo" {
		t.Errorf("unexpected tags %v", got)
	}
	if got := reloaded.Tags("local:missing.jpg"); got == nil || len(got) != 0 {
		t.Errorf("expected empty slice for unknown media, got %v", got)
	}

	if err := reloaded.Remove("local:a.jpg"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := reloaded.Tags("local:a.jpg"); len(got) != 0 {
		t.Errorf("tags survived removal: %v", got)
	}
}
