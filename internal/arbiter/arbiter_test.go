/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package arbiter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/display"
	"github.com/friendsincode/grimnir_signage/internal/events"
	"github.com/friendsincode/grimnir_signage/internal/media"
	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/store"
)

type stubProcess struct {
	exited chan error
	once   sync.Once
}

func (p *stubProcess) Wait() error { return <-p.exited }
func (p *stubProcess) Terminate() error {
	p.once.Do(func() { p.exited <- errors.New("terminated") })
	return nil
}
func (p *stubProcess) Kill() error {
	p.once.Do(func() { p.exited <- errors.New("killed") })
	return nil
}

type stubLauncher struct {
	mu       sync.Mutex
	contents []display.Content
}

func (l *stubLauncher) Launch(content display.Content) (display.Process, error) {
	l.mu.Lock()
	l.contents = append(l.contents, content)
	l.mu.Unlock()
	return &stubProcess{exited: make(chan error, 1)}, nil
}

func (l *stubLauncher) last() (display.Content, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.contents) == 0 {
		return display.Content{}, 0
	}
	return l.contents[len(l.contents)-1], len(l.contents)
}

type countingBlanker struct {
	calls atomic.Int64
}

func (b *countingBlanker) SetBlank(ctx context.Context, on bool) error {
	b.calls.Add(1)
	return nil
}

type fixture struct {
	arbiter   *Arbiter
	launcher  *stubLauncher
	blanker   *countingBlanker
	store     *store.Store
	index     *media.Index
	mediaRoot string
	target    atomic.Value // models.Target
	cancel    context.CancelFunc
}

func newFixture(t *testing.T, overrideWindow time.Duration) *fixture {
	t.Helper()
	f := newFixtureFiles(t, overrideWindow, "a.jpg", "b.jpg")
	f.start(t)
	return f
}

// newFixtureFiles builds the arbiter and its collaborators without starting
// the loop, so tests can drive internal transitions directly or start the
// loop themselves.
func newFixtureFiles(t *testing.T, overrideWindow time.Duration, files ...string) *fixture {
	t.Helper()
	mediaRoot := t.TempDir()
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(mediaRoot, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	tags, err := store.NewTagStore(filepath.Join(t.TempDir(), "metadata.json"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	prober := media.NewProber("/nonexistent/ffprobe", time.Second, zerolog.Nop())
	index := media.NewIndex(map[string]string{"local": mediaRoot}, prober, tags, zerolog.Nop())
	if err := index.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, err := store.New(filepath.Join(t.TempDir(), "playlists.json"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	launcher := &stubLauncher{}
	blanker := &countingBlanker{}
	ctl := display.NewController(launcher, nil, blanker, 50*time.Millisecond, time.Second, zerolog.Nop())

	f := &fixture{launcher: launcher, blanker: blanker, store: st, index: index, mediaRoot: mediaRoot}
	f.target.Store(models.WebTarget("https://home.example.com"))
	f.arbiter = New(ctl, index, st, events.NewBus(), func() models.Target {
		return f.target.Load().(models.Target)
	}, 80*time.Millisecond, overrideWindow, "https://home.example.com", zerolog.Nop())
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.arbiter.Run(ctx)
	t.Cleanup(cancel)
}

func (f *fixture) waitState(t *testing.T, cond func(models.DeviceState) bool) models.DeviceState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last models.DeviceState
	for time.Now().Before(deadline) {
		last = f.arbiter.State()
		if cond(last) {
			return last
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state condition not reached, last %+v", last)
	return last
}

func TestScheduleEmissionAppliesTarget(t *testing.T) {
	f := newFixture(t, time.Minute)

	p, err := f.store.SavePlaylist(models.Playlist{Name: "loop", Loop: true, Items: []models.PlaylistItem{
		{MediaID: "local:a.jpg"},
		{MediaID: "local:b.jpg"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	f.target.Store(models.PlaylistTarget(p.ID, "sched-1"))
	f.arbiter.ApplySchedule(models.PlaylistTarget(p.ID, "sched-1"))

	state := f.waitState(t, func(s models.DeviceState) bool {
		return s.Mode == models.ModePlaylist && s.Media != nil
	})
	if state.Media.Identifier != "local:a.jpg" {
		t.Errorf("expected first item, got %q", state.Media.Identifier)
	}
	if state.Playlist == nil || state.Playlist.ScheduleID != "sched-1" {
		t.Errorf("schedule attribution missing: %+v", state.Playlist)
	}

	// the image default is short, so the timer advances to the next item
	f.waitState(t, func(s models.DeviceState) bool {
		return s.Media != nil && s.Media.Identifier == "local:b.jpg"
	})
}

func TestBlankIsIdempotent(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	if err := f.arbiter.SetBlank(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := f.arbiter.SetBlank(ctx, true); err != nil {
		t.Fatal(err)
	}
	state := f.arbiter.State()
	if !state.Blanked {
		t.Error("expected blanked state")
	}
	if got := f.blanker.calls.Load(); got != 1 {
		t.Errorf("expected one blanker call, got %d", got)
	}

	if err := f.arbiter.SetBlank(ctx, false); err != nil {
		t.Fatal(err)
	}
	if state := f.arbiter.State(); state.Blanked {
		t.Error("expected unblanked state")
	}
}

func TestOverrideWindowHoldsSchedule(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond)
	ctx := context.Background()

	if err := f.arbiter.NavigateWeb(ctx, "https://manual.example.com"); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, func(s models.DeviceState) bool {
		return s.URL == "https://manual.example.com"
	})

	// a schedule emission during the window must not win
	f.target.Store(models.WebTarget("https://sched.example.com"))
	f.arbiter.ApplySchedule(models.WebTarget("https://sched.example.com"))
	time.Sleep(50 * time.Millisecond)
	if state := f.arbiter.State(); state.URL != "https://manual.example.com" {
		t.Errorf("override lost early: %q", state.URL)
	}

	// once the window lapses the authoritative target is re-applied
	f.waitState(t, func(s models.DeviceState) bool {
		return s.URL == "https://sched.example.com"
	})
}

func TestWebActionRejectedInPlaylistMode(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	p, err := f.store.SavePlaylist(models.Playlist{Name: "loop", Loop: true, Items: []models.PlaylistItem{
		{MediaID: "local:a.jpg"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.arbiter.PlayPlaylist(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, func(s models.DeviceState) bool { return s.Mode == models.ModePlaylist })

	err = f.arbiter.WebAction(ctx, models.WebActionReload)
	if !errors.Is(err, models.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestPlaylistCommandStepsManually(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	p, err := f.store.SavePlaylist(models.Playlist{Name: "loop", Loop: true, Items: []models.PlaylistItem{
		{MediaID: "local:a.jpg", Duration: 3600},
		{MediaID: "local:b.jpg", Duration: 3600},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.arbiter.PlayPlaylist(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, func(s models.DeviceState) bool {
		return s.Media != nil && s.Media.Identifier == "local:a.jpg"
	})

	if err := f.arbiter.PlaylistCommand(ctx, "next"); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, func(s models.DeviceState) bool {
		return s.Media != nil && s.Media.Identifier == "local:b.jpg"
	})

	if err := f.arbiter.PlaylistCommand(ctx, "restart"); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, func(s models.DeviceState) bool {
		return s.Media != nil && s.Media.Identifier == "local:a.jpg"
	})

	if err := f.arbiter.PlaylistCommand(ctx, "rewind"); !errors.Is(err, models.ErrConfig) {
		t.Errorf("expected ErrConfig for unknown verb, got %v", err)
	}
}

func TestUnresolvedMediaRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	err := f.arbiter.PlayMedia(context.Background(), "local:ghost.jpg")
	if !errors.Is(err, models.ErrMediaUnresolved) {
		t.Fatalf("expected ErrMediaUnresolved, got %v", err)
	}
}

func TestExhaustedPlaylistDefersToFallback(t *testing.T) {
	f := newFixture(t, time.Minute)

	if err := f.store.SetFallback(models.FallbackConfig{Mode: models.FallbackWeb, URL: "https://fallback.example.com"}); err != nil {
		t.Fatal(err)
	}
	p, err := f.store.SavePlaylist(models.Playlist{Name: "once", Items: []models.PlaylistItem{
		{MediaID: "local:a.jpg"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	f.target.Store(models.PlaylistTarget(p.ID, "sched-1"))
	f.arbiter.ApplySchedule(models.PlaylistTarget(p.ID, "sched-1"))

	// the single short image runs out and the stored fallback takes over
	state := f.waitState(t, func(s models.DeviceState) bool {
		return s.Mode == models.ModeWeb && s.URL == "https://fallback.example.com"
	})
	if state.Playlist == nil || !state.Playlist.Exhausted {
		t.Errorf("exhausted position missing from state: %+v", state.Playlist)
	}
}

func TestExhaustionSkipsSelfReferentialFallback(t *testing.T) {
	f := newFixture(t, time.Minute)

	p, err := f.store.SavePlaylist(models.Playlist{Name: "once", Items: []models.PlaylistItem{
		{MediaID: "local:a.jpg"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetFallback(models.FallbackConfig{Mode: models.FallbackPlaylist, PlaylistID: p.ID}); err != nil {
		t.Fatal(err)
	}
	f.target.Store(models.PlaylistTarget(p.ID, "sched-1"))
	f.arbiter.ApplySchedule(models.PlaylistTarget(p.ID, "sched-1"))

	// the fallback points at the playlist that just ran out, so the homepage
	// is the only safe landing
	f.waitState(t, func(s models.DeviceState) bool {
		return s.Mode == models.ModeWeb && s.URL == "https://home.example.com"
	})
}

func TestFaultedTargetUsesFallback(t *testing.T) {
	f := newFixtureFiles(t, time.Minute)
	if err := f.store.SetFallback(models.FallbackConfig{Mode: models.FallbackWeb, URL: "https://fallback.example.com"}); err != nil {
		t.Fatal(err)
	}
	f.target.Store(models.WebTarget("https://dash.example.com"))

	a := f.arbiter
	a.initTimers()
	a.onExit(context.Background(), display.ExitEvent{
		Content: display.WebContent("https://dash.example.com"),
		Faulted: true,
		Err:     errors.New("renderer crashed repeatedly"),
	})

	if a.state.Mode != models.ModeWeb || a.state.URL != "https://fallback.example.com" {
		t.Errorf("expected fallback after fault, got mode=%s url=%q", a.state.Mode, a.state.URL)
	}
	if len(a.state.Faults) != 1 || a.state.Faults[0] != models.WebTarget("https://dash.example.com").Key() {
		t.Errorf("fault not recorded: %v", a.state.Faults)
	}
}

func TestResyncRetriesAfterMediaAppears(t *testing.T) {
	f := newFixtureFiles(t, time.Minute)
	f.start(t)

	if err := f.store.SetFallback(models.FallbackConfig{Mode: models.FallbackWeb, URL: "https://fallback.example.com"}); err != nil {
		t.Fatal(err)
	}
	p, err := f.store.SavePlaylist(models.Playlist{Name: "loop", Loop: true, Items: []models.PlaylistItem{
		{MediaID: "local:late.jpg", Duration: 3600},
	}})
	if err != nil {
		t.Fatal(err)
	}
	f.target.Store(models.PlaylistTarget(p.ID, "sched-1"))
	f.arbiter.ApplySchedule(models.PlaylistTarget(p.ID, "sched-1"))

	// nothing in the playlist resolves against the empty index
	f.waitState(t, func(s models.DeviceState) bool {
		return s.Mode == models.ModeWeb && s.URL == "https://fallback.example.com"
	})

	if err := os.WriteFile(filepath.Join(f.mediaRoot, "late.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.index.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.arbiter.Resync()

	f.waitState(t, func(s models.DeviceState) bool {
		return s.Mode == models.ModePlaylist && s.Media != nil && s.Media.Identifier == "local:late.jpg"
	})
}

func TestResyncReloadsEditedPlaylist(t *testing.T) {
	f := newFixture(t, time.Minute)

	p, err := f.store.SavePlaylist(models.Playlist{Name: "board", Loop: true, Items: []models.PlaylistItem{
		{MediaID: "local:a.jpg", Duration: 3600},
	}})
	if err != nil {
		t.Fatal(err)
	}
	f.target.Store(models.PlaylistTarget(p.ID, "sched-1"))
	f.arbiter.ApplySchedule(models.PlaylistTarget(p.ID, "sched-1"))
	f.waitState(t, func(s models.DeviceState) bool {
		return s.Media != nil && s.Media.Identifier == "local:a.jpg"
	})

	// a resync with nothing changed must not restart the renderer
	_, before := f.launcher.last()
	f.arbiter.Resync()
	time.Sleep(50 * time.Millisecond)
	if _, after := f.launcher.last(); after != before {
		t.Errorf("unchanged playlist restarted: %d -> %d launches", before, after)
	}

	p.Items = []models.PlaylistItem{{MediaID: "local:b.jpg", Duration: 3600}}
	if _, err := f.store.SavePlaylist(p); err != nil {
		t.Fatal(err)
	}
	f.arbiter.Resync()

	f.waitState(t, func(s models.DeviceState) bool {
		return s.Media != nil && s.Media.Identifier == "local:b.jpg"
	})
}
