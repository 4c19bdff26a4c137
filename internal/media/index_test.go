/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/store"
)

func testIndex(t *testing.T, files map[string]string) *Index {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	tags, err := store.NewTagStore(filepath.Join(t.TempDir(), "metadata.json"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// a nonexistent binary leaves videos unprobed, which the index tolerates
	prober := NewProber("/nonexistent/ffprobe", time.Second, zerolog.Nop())
	idx := NewIndex(map[string]string{"local": root}, prober, tags, zerolog.Nop())
	if err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return idx
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want models.MediaType
		ok   bool
	}{
		{"photo.JPG", models.MediaTypeImage, true},
		{"clip.mp4", models.MediaTypeVideo, true},
		{"song.flac", models.MediaTypeAudio, true},
		{"page.html", models.MediaTypeWeb, true},
		{"notes.txt", "", false},
		{"archive.zip", "", false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Classify(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIndexScan(t *testing.T) {
	idx := testIndex(t, map[string]string{
		"ads/promo.jpg":      "img",
		"ads/clip.mp4":       "vid",
		"notes.txt":          "skip",
		".hidden/spooky.mp4": "skip",
	})

	items := idx.Items("", "")
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}

	item, err := idx.Resolve("local:ads/promo.jpg")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if item.Type != models.MediaTypeImage || item.Source != "local" {
		t.Errorf("unexpected item %+v", item)
	}
	if item.Tags == nil {
		t.Error("tags must never be nil")
	}

	if _, err := idx.Resolve("local:ads/missing.jpg"); !errors.Is(err, models.ErrMediaUnresolved) {
		t.Errorf("expected ErrMediaUnresolved, got %v", err)
	}
}

func TestItemsTagFilter(t *testing.T) {
	idx := testIndex(t, map[string]string{"a.jpg": "x", "b.jpg": "y"})
	if err := idx.tags.SetTags("local:a.jpg", []string{"lobby"}); err != nil {
		t.Fatal(err)
	}
	got := idx.Items("", "lobby")
	if len(got) != 1 || got[0].Identifier != "local:a.jpg" {
		t.Errorf("tag filter mismatch: %+v", got)
	}
}

func TestDeleteRemovesFileAndTags(t *testing.T) {
	idx := testIndex(t, map[string]string{"old.jpg": "x"})
	if err := idx.tags.SetTags("local:old.jpg", []string{"stale"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete("local:old.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	path, _ := idx.AbsolutePath("local:old.jpg")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if tags := idx.tags.Tags("local:old.jpg"); len(tags) != 0 {
		t.Errorf("tags survived delete: %v", tags)
	}
}

func TestSafeJoin(t *testing.T) {
	root := "/srv/media"
	if _, err := SafeJoin(root, "../etc/passwd"); err == nil {
		t.Error("expected traversal rejection")
	}
	if _, err := SafeJoin(root, "/etc/passwd"); err == nil {
		t.Error("expected absolute path rejection")
	}
	got, err := SafeJoin(root, "ads/one.jpg")
	if err != nil {
		t.Fatalf("SafeJoin: %v", err)
	}
	if got != filepath.Join(root, "ads", "one.jpg") {
		t.Errorf("unexpected join %q", got)
	}
}
