/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package media

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_signage/internal/models"
)

// ProbeResult carries the stream metadata extracted from a file.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
}

// Prober extracts media metadata with ffprobe. A missing or failing ffprobe
// leaves items unprobed rather than unindexed.
type Prober struct {
	binary  string
	timeout time.Duration
	log     zerolog.Logger
}

// NewProber builds a prober. An empty binary defaults to "ffprobe" on PATH.
func NewProber(binary string, timeout time.Duration, log zerolog.Logger) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{binary: binary, timeout: timeout, log: log.With().Str("component", "prober").Logger()}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe runs ffprobe against path. Only video and audio files are worth the
// subprocess; images are sized by the browser or viewer.
func (p *Prober) Probe(ctx context.Context, path string, typ models.MediaType) (ProbeResult, bool) {
	if typ != models.MediaTypeVideo && typ != models.MediaTypeAudio {
		return ProbeResult{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	raw, err := cmd.Output()
	if err != nil {
		p.log.Debug().Err(err).Str("path", path).Msg("ffprobe failed")
		return ProbeResult{}, false
	}
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		p.log.Debug().Err(err).Str("path", path).Msg("ffprobe output unparseable")
		return ProbeResult{}, false
	}
	result := ProbeResult{}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		result.Duration = d
	}
	for _, stream := range out.Streams {
		if stream.CodecType == "video" && stream.Width > 0 {
			result.Width = stream.Width
			result.Height = stream.Height
			break
		}
	}
	return result, true
}
