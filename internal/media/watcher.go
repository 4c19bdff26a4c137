/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package media

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher rebuilds the index when files change under the content roots.
// Filesystem events are debounced so a bulk copy triggers one rescan, not
// hundreds.
type Watcher struct {
	index    *Index
	debounce time.Duration
	kick     chan struct{}
	notify   func()
	log      zerolog.Logger
}

// NewWatcher builds a watcher over the index's roots.
func NewWatcher(index *Index, debounce time.Duration, log zerolog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		index:    index,
		debounce: debounce,
		kick:     make(chan struct{}, 1),
		log:      log.With().Str("component", "media_watcher").Logger(),
	}
}

// OnRefresh registers a callback invoked after every completed scan, so the
// arbiter can retry playlists that could not resolve against the previous
// snapshot. Must be set before Run.
func (w *Watcher) OnRefresh(fn func()) {
	w.notify = fn
}

// Kick requests an immediate rescan, used after uploads and deletes.
func (w *Watcher) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run performs the initial scan and then watches for changes until the
// context is cancelled. inotify is not recursive, so every directory from
// the latest snapshot is (re)registered after each scan.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.index.Refresh(ctx); err != nil {
		w.log.Error().Err(err).Msg("initial media scan failed")
	} else if w.notify != nil {
		w.notify()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	w.addDirs(fsw)

	var timer *time.Timer
	var fire <-chan time.Time
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			fire = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				arm()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		case <-w.kick:
			arm()
		case <-fire:
			if err := w.index.Refresh(ctx); err != nil {
				w.log.Error().Err(err).Msg("media rescan failed")
			} else if w.notify != nil {
				w.notify()
			}
			w.addDirs(fsw)
		}
	}
}

func (w *Watcher) addDirs(fsw *fsnotify.Watcher) {
	for _, dir := range w.index.watchDirs() {
		if err := fsw.Add(dir); err != nil {
			w.log.Debug().Err(err).Str("dir", dir).Msg("watch add failed")
		}
	}
}
