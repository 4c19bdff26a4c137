/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/models"
	"github.com/friendsincode/grimnir_signage/internal/telemetry"
)

const (
	maxConsecutiveFailures = 3
	initialBackoff         = time.Second
	// a process that survives this long resets the failure counter
	healthyAfter = 30 * time.Second
)

// ExitEvent reports a renderer exit the arbiter needs to act on. Expected
// exits from transitions are absorbed here and never reported.
type ExitEvent struct {
	Content Content
	// Completed means a media renderer finished its file cleanly.
	Completed bool
	// Faulted means the content crashed repeatedly and was abandoned.
	Faulted bool
	Err     error
}

type session struct {
	content  Content
	proc     Process
	expected bool
	done     chan struct{}
}

// Controller keeps exactly one renderer on screen. Transitions stop the old
// process, wait out a grace period, then start the new one. Crashed
// renderers are relaunched with exponential backoff; after three consecutive
// fast failures the content is abandoned and a faulted exit is reported.
type Controller struct {
	launcher Launcher
	devtools *DevTools
	blanker  Blanker
	grace    time.Duration
	ceiling  time.Duration
	exits    chan ExitEvent
	log      zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	current *session
}

// NewController builds the display controller.
func NewController(launcher Launcher, devtools *DevTools, blanker Blanker, grace, backoffCeiling time.Duration, log zerolog.Logger) *Controller {
	if grace <= 0 {
		grace = 3 * time.Second
	}
	if backoffCeiling <= 0 {
		backoffCeiling = 30 * time.Second
	}
	return &Controller{
		launcher: launcher,
		devtools: devtools,
		blanker:  blanker,
		grace:    grace,
		ceiling:  backoffCeiling,
		exits:    make(chan ExitEvent, 16),
		log:      log.With().Str("component", "display").Logger(),
	}
}

// Exits delivers completion and fault events to the arbiter.
func (c *Controller) Exits() <-chan ExitEvent {
	return c.exits
}

// Showing returns the content currently on screen, if any.
func (c *Controller) Showing() (Content, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Content{}, false
	}
	return c.current.content, true
}

// Show replaces whatever is on screen with the given content. The previous
// renderer is fully stopped before the new one starts.
func (c *Controller) Show(content Content) {
	old, gen := c.retire()
	c.stopSession(old)
	go c.supervise(gen, content)
}

// Stop takes the renderer off screen without starting a replacement.
func (c *Controller) Stop() {
	old, _ := c.retire()
	c.stopSession(old)
}

// retire bumps the generation so any in-flight supervisor abandons its
// content, and detaches the current session for stopping.
func (c *Controller) retire() (*session, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	sess := c.current
	c.current = nil
	if sess != nil {
		sess.expected = true
	}
	return sess, c.gen
}

// stopSession terminates a renderer, escalating to kill after the grace
// period, and waits for the process to be fully gone.
func (c *Controller) stopSession(sess *session) {
	if sess == nil {
		return
	}
	if err := sess.proc.Terminate(); err != nil {
		c.log.Debug().Err(err).Msg("terminate failed, killing")
		sess.proc.Kill()
	}
	select {
	case <-sess.done:
		return
	case <-time.After(c.grace):
		c.log.Warn().Str("kind", string(sess.content.Kind)).Msg("renderer ignored shutdown, killing")
		sess.proc.Kill()
	}
	<-sess.done
}

// supervise launches the content and keeps it running until it is
// superseded, completes, or faults out.
func (c *Controller) supervise(gen uint64, content Content) {
	attempts := 0
	backoff := initialBackoff

	for {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		proc, err := c.launcher.Launch(content)
		if err != nil {
			c.mu.Unlock()
			c.log.Error().Err(err).Str("kind", string(content.Kind)).Msg("renderer launch failed")
		} else {
			sess := &session{content: content, proc: proc, done: make(chan struct{})}
			c.current = sess
			c.mu.Unlock()

			started := time.Now()
			err = proc.Wait()
			close(sess.done)

			c.mu.Lock()
			if c.current == sess {
				c.current = nil
			}
			stale := c.gen != gen || sess.expected
			c.mu.Unlock()
			if stale {
				return
			}
			if content.mediaKind() && err == nil {
				c.emit(ExitEvent{Content: content, Completed: true})
				return
			}
			c.log.Warn().Err(err).Str("kind", string(content.Kind)).Dur("ran", time.Since(started)).Msg("renderer exited unexpectedly")
			if time.Since(started) >= healthyAfter {
				attempts = 0
				backoff = initialBackoff
			}
		}

		attempts++
		if attempts >= maxConsecutiveFailures {
			c.emit(ExitEvent{Content: content, Faulted: true, Err: err})
			return
		}
		telemetry.DisplayRestarts.Inc()
		time.Sleep(backoff)
		backoff *= 2
		if backoff > c.ceiling {
			backoff = c.ceiling
		}
	}
}

// NavigateWeb switches web content in place over DevTools when the browser
// is already up, avoiding a restart. Anything else falls back to a full
// transition.
func (c *Controller) NavigateWeb(ctx context.Context, url string) {
	c.mu.Lock()
	webNow := c.current != nil && c.current.content.Kind == KindWeb
	c.mu.Unlock()
	if webNow && c.devtools != nil {
		err := c.devtools.Navigate(ctx, url)
		if err == nil {
			c.mu.Lock()
			if c.current != nil && c.current.content.Kind == KindWeb {
				c.current.content.URL = url
			}
			c.mu.Unlock()
			return
		}
		c.log.Warn().Err(err).Msg("devtools navigate failed, restarting browser")
	}
	c.Show(WebContent(url))
}

// WebAction runs a browser history action. Only valid while web content is
// on screen.
func (c *Controller) WebAction(ctx context.Context, action models.WebAction, homepage string) error {
	c.mu.Lock()
	webNow := c.current != nil && c.current.content.Kind == KindWeb
	c.mu.Unlock()
	if !webNow {
		return fmt.Errorf("%w: browser actions require web mode", models.ErrInvalidMode)
	}
	if c.devtools == nil {
		return fmt.Errorf("%w: devtools unavailable", models.ErrInvalidMode)
	}
	switch action {
	case models.WebActionBack:
		return c.devtools.Back(ctx)
	case models.WebActionForward:
		return c.devtools.Forward(ctx)
	case models.WebActionReload:
		return c.devtools.Reload(ctx)
	case models.WebActionHome:
		c.NavigateWeb(ctx, homepage)
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", models.ErrInvalidMode, action)
	}
}

// Blank switches the physical screen output.
func (c *Controller) Blank(ctx context.Context, on bool) error {
	if c.blanker == nil {
		return nil
	}
	return c.blanker.SetBlank(ctx, on)
}

func (c *Controller) emit(ev ExitEvent) {
	select {
	case c.exits <- ev:
	default:
		c.log.Warn().Msg("exit event dropped, arbiter backlogged")
	}
}
