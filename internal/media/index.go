/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package media

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/store"
	"github.com/friendsincode/grimnir_signage/internal/telemetry"
)

// snapshot is an immutable view of the index at one scan.
type snapshot struct {
	items   []models.MediaItem
	byID    map[string]int
	dirs    []string
	scanned time.Time
}

// Index scans the content roots and serves immutable snapshots. Readers get
// whichever snapshot was current when they asked; a rescan swaps the whole
// snapshot in one atomic store.
type Index struct {
	roots  map[string]string
	order  []string
	prober *Prober
	tags   *store.TagStore
	snap   atomic.Pointer[snapshot]
	log    zerolog.Logger
}

// NewIndex builds an index over the given source roots. Sources with an
// empty path are skipped, which is how optional roots (network, cache) are
// disabled.
func NewIndex(roots map[string]string, prober *Prober, tags *store.TagStore, log zerolog.Logger) *Index {
	idx := &Index{
		roots:  make(map[string]string),
		prober: prober,
		tags:   tags,
		log:    log.With().Str("component", "media").Logger(),
	}
	for source, root := range roots {
		if root == "" {
			continue
		}
		idx.roots[source] = root
		idx.order = append(idx.order, source)
	}
	sort.Strings(idx.order)
	idx.snap.Store(&snapshot{byID: map[string]int{}})
	return idx
}

// Refresh walks every root and replaces the current snapshot. Probe results
// from the previous snapshot are reused for files whose size and mtime have
// not changed, so a rescan only pays for new or modified files.
func (idx *Index) Refresh(ctx context.Context) error {
	prev := idx.snap.Load()
	next := &snapshot{byID: make(map[string]int), scanned: time.Now()}

	for _, source := range idx.order {
		root := idx.roots[source]
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				idx.log.Debug().Err(err).Str("path", path).Msg("walk error, skipping")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return fs.SkipDir
				}
				next.dirs = append(next.dirs, path)
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			typ, ok := Classify(d.Name())
			if !ok {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			item := models.MediaItem{
				Identifier: source + ":" + rel,
				Name:       d.Name(),
				Source:     source,
				Path:       rel,
				Type:       typ,
				Size:       info.Size(),
				Modified:   info.ModTime(),
				MimeType:   MimeType(d.Name()),
			}
			if cached, ok := prev.lookup(item.Identifier); ok && cached.Size == item.Size && cached.Modified.Equal(item.Modified) {
				item.Duration = cached.Duration
				item.Width = cached.Width
				item.Height = cached.Height
			} else if result, ok := idx.prober.Probe(ctx, path, typ); ok {
				item.Duration = result.Duration
				item.Width = result.Width
				item.Height = result.Height
			}
			next.byID[item.Identifier] = len(next.items)
			next.items = append(next.items, item)
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", source, err)
		}
	}

	idx.snap.Store(next)
	telemetry.MediaIndexItems.Set(float64(len(next.items)))
	idx.log.Info().Int("items", len(next.items)).Msg("media index refreshed")
	return nil
}

func (s *snapshot) lookup(id string) (models.MediaItem, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.MediaItem{}, false
	}
	return s.items[i], true
}

// Items returns the indexed media, optionally filtered by source and tag.
// Tags are attached from the tag store at read time.
func (idx *Index) Items(source, tag string) []models.MediaItem {
	snap := idx.snap.Load()
	out := make([]models.MediaItem, 0, len(snap.items))
	for _, item := range snap.items {
		if source != "" && item.Source != source {
			continue
		}
		item.Tags = idx.tags.Tags(item.Identifier)
		if tag != "" && !contains(item.Tags, tag) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Resolve returns the media item for an identifier.
func (idx *Index) Resolve(id string) (models.MediaItem, error) {
	item, ok := idx.snap.Load().lookup(id)
	if !ok {
		return models.MediaItem{}, fmt.Errorf("%w: %s", models.ErrMediaUnresolved, id)
	}
	item.Tags = idx.tags.Tags(item.Identifier)
	return item, nil
}

// AbsolutePath maps an identifier to its path on disk.
func (idx *Index) AbsolutePath(id string) (string, error) {
	item, err := idx.Resolve(id)
	if err != nil {
		return "", err
	}
	root, ok := idx.roots[item.Source]
	if !ok {
		return "", fmt.Errorf("%w: source %s not mounted", models.ErrMediaUnresolved, item.Source)
	}
	return filepath.Join(root, filepath.FromSlash(item.Path)), nil
}

// Root returns the filesystem root for a source.
func (idx *Index) Root(source string) (string, bool) {
	root, ok := idx.roots[source]
	return root, ok
}

// Sources lists the mounted sources in stable order.
func (idx *Index) Sources() []string {
	return append([]string(nil), idx.order...)
}

// LastScan reports when the current snapshot was built.
func (idx *Index) LastScan() time.Time {
	return idx.snap.Load().scanned
}

// dirs returns every directory in the current snapshot, for the watcher.
func (idx *Index) watchDirs() []string {
	return idx.snap.Load().dirs
}

// Delete removes the file behind an identifier and its tags. The caller is
// expected to refresh afterwards.
func (idx *Index) Delete(id string) error {
	path, err := idx.AbsolutePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return idx.tags.Remove(id)
}

// SafeJoin joins rel under root, rejecting any path that escapes it.
func SafeJoin(root, rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q", models.ErrConfig, rel)
	}
	joined := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes root", models.ErrConfig, rel)
	}
	return joined, nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
