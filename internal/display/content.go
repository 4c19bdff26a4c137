/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package display owns the screen. Exactly one foreground process renders at
// any time: a kiosk browser for web content, mpv for video and audio, imv
// for images. Transitions are stop-then-start, never overlapping.
package display

import "github.com/friendsincode/grimnir_signage/internal/models"

// ContentKind selects the renderer.
type ContentKind string

const (
	KindWeb   ContentKind = "web"
	KindImage ContentKind = "image"
	KindVideo ContentKind = "video"
	KindAudio ContentKind = "audio"
)

// Content describes one thing to put on screen.
type Content struct {
	Kind ContentKind
	// URL is set for web content.
	URL string
	// Path is the absolute file path for image, video and audio content.
	Path string
}

// WebContent builds web content.
func WebContent(url string) Content {
	return Content{Kind: KindWeb, URL: url}
}

// MediaContent builds file content from an indexed item.
func MediaContent(item models.MediaItem, path string) Content {
	switch item.Type {
	case models.MediaTypeVideo:
		return Content{Kind: KindVideo, Path: path}
	case models.MediaTypeAudio:
		return Content{Kind: KindAudio, Path: path}
	default:
		return Content{Kind: KindImage, Path: path}
	}
}

// mediaKind reports whether the content plays to completion, meaning a clean
// process exit is a completion signal rather than a crash.
func (c Content) mediaKind() bool {
	return c.Kind == KindVideo || c.Kind == KindAudio
}
