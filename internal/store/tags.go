/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// TagStore persists media tags keyed by media identifier. Tags survive
// re-indexing because the index itself is rebuilt from the filesystem.
type TagStore struct {
	mu   sync.RWMutex
	path string
	tags map[string][]string
	log  zerolog.Logger
}

// NewTagStore loads the tag document at path. A corrupt file starts the
// store empty, leaving the file untouched until the next write.
func NewTagStore(path string, log zerolog.Logger) (*TagStore, error) {
	t := &TagStore{
		path: path,
		tags: make(map[string][]string),
		log:  log.With().Str("component", "tagstore").Logger(),
	}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &t.tags); err != nil {
		t.log.Error().Err(err).Str("path", path).Msg("tag store corrupt, starting empty")
		t.tags = make(map[string][]string)
	}
	return t, nil
}

// Tags returns the tags for a media identifier, never nil.
func (t *TagStore) Tags(mediaID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tags := t.tags[mediaID]
	if tags == nil {
		return []string{}
	}
	return append([]string(nil), tags...)
}

// SetTags replaces the tag set for a media identifier. Tags are deduplicated
// and sorted; an empty set removes the entry.
func (t *TagStore) SetTags(mediaID string, tags []string) error {
	seen := make(map[string]struct{}, len(tags))
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		cleaned = append(cleaned, tag)
	}
	sort.Strings(cleaned)

	t.mu.Lock()
	defer t.mu.Unlock()
	next := make(map[string][]string, len(t.tags))
	for k, v := range t.tags {
		next[k] = v
	}
	if len(cleaned) == 0 {
		delete(next, mediaID)
	} else {
		next[mediaID] = cleaned
	}
	if err := writeAtomic(t.path, next); err != nil {
		return err
	}
	t.tags = next
	return nil
}

// Remove drops the tags for a media identifier, if any.
func (t *TagStore) Remove(mediaID string) error {
	return t.SetTags(mediaID, nil)
}
