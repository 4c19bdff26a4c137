/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media maintains the read-only index of playable files across the
// configured content roots. The index is rebuilt as immutable snapshots so
// readers never block a rescan.
package media

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

var extTypes = map[string]models.MediaType{
	".jpg":  models.MediaTypeImage,
	".jpeg": models.MediaTypeImage,
	".png":  models.MediaTypeImage,
	".gif":  models.MediaTypeImage,
	".webp": models.MediaTypeImage,
	".bmp":  models.MediaTypeImage,
	".svg":  models.MediaTypeImage,
	".mp4":  models.MediaTypeVideo,
	".mkv":  models.MediaTypeVideo,
	".webm": models.MediaTypeVideo,
	".mov":  models.MediaTypeVideo,
	".avi":  models.MediaTypeVideo,
	".m4v":  models.MediaTypeVideo,
	".mp3":  models.MediaTypeAudio,
	".flac": models.MediaTypeAudio,
	".ogg":  models.MediaTypeAudio,
	".wav":  models.MediaTypeAudio,
	".m4a":  models.MediaTypeAudio,
	".opus": models.MediaTypeAudio,
	".html": models.MediaTypeWeb,
	".htm":  models.MediaTypeWeb,
	".url":  models.MediaTypeWeb,
}

// Classify maps a filename to a media type by extension. Unknown extensions
// are not indexed.
func Classify(name string) (models.MediaType, bool) {
	typ, ok := extTypes[strings.ToLower(filepath.Ext(name))]
	return typ, ok
}

// MimeType returns the mime type for a filename, empty when unknown.
func MimeType(name string) string {
	return mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
}
