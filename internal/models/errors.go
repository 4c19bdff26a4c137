/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "errors"

var (
	// ErrConfig indicates a malformed playlist, schedule, or fallback rule.
	// Rejected at write time where possible; tolerated at evaluation time.
	ErrConfig = errors.New("configuration error")

	// ErrMediaUnresolved indicates a media identifier that does not resolve
	// in the current index snapshot. Non-fatal: the item is skipped.
	ErrMediaUnresolved = errors.New("media unresolved")

	// ErrInvalidMode indicates a command that is not valid in the current
	// display mode (e.g. a browser action while a playlist is showing).
	ErrInvalidMode = errors.New("invalid display mode")

	// ErrAuth indicates a rejected credential or token; no side effects.
	ErrAuth = errors.New("authentication failed")

	// ErrStoreCorrupt indicates an unparsable persisted store. The last
	// good in-memory copy remains authoritative and the device is marked
	// health-degraded.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrNotFound indicates a missing playlist, schedule, or media item.
	ErrNotFound = errors.New("not found")
)
