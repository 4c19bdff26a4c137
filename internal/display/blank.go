/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package display

import (
	"context"
	"os/exec"

	"github.com/rs/zerolog"
)

// Blanker turns the physical screen off and on. Content keeps running
// underneath; blanking is purely an output switch.
type Blanker interface {
	SetBlank(ctx context.Context, on bool) error
}

type dpmsBlanker struct {
	log zerolog.Logger
}

// NewDPMSBlanker blanks via vcgencmd on Raspberry Pi, falling back to xset
// DPMS on generic X11 setups.
func NewDPMSBlanker(log zerolog.Logger) Blanker {
	return &dpmsBlanker{log: log.With().Str("component", "blanker").Logger()}
}

func (b *dpmsBlanker) SetBlank(ctx context.Context, on bool) error {
	power := "1"
	xsetArg := "on"
	if on {
		power = "0"
		xsetArg = "off"
	}
	if err := exec.CommandContext(ctx, "vcgencmd", "display_power", power).Run(); err == nil {
		return nil
	}
	if err := exec.CommandContext(ctx, "xset", "dpms", "force", xsetArg).Run(); err != nil {
		return err
	}
	return nil
}
