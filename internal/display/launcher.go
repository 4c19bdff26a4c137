/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package display

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Process is a handle on a launched renderer.
type Process interface {
	// Wait blocks until the process exits. A nil error is a clean exit.
	Wait() error
	// Terminate asks the process to shut down.
	Terminate() error
	// Kill forcibly ends the process.
	Kill() error
}

// Launcher starts renderer processes. The exec implementation is swapped
// out in tests.
type Launcher interface {
	Launch(content Content) (Process, error)
}

// Options carries the binaries and flags the exec launcher needs.
type Options struct {
	ChromiumBinary string
	FlagsFile      string
	DebugPort      int
	MpvBinary      string
	ImvBinary      string
}

type execLauncher struct {
	opts Options
}

// NewExecLauncher builds the os/exec launcher used in production.
func NewExecLauncher(opts Options) Launcher {
	if opts.ChromiumBinary == "" {
		opts.ChromiumBinary = "chromium"
	}
	if opts.MpvBinary == "" {
		opts.MpvBinary = "mpv"
	}
	if opts.ImvBinary == "" {
		opts.ImvBinary = "imv"
	}
	if opts.DebugPort == 0 {
		opts.DebugPort = 9222
	}
	return &execLauncher{opts: opts}
}

func (l *execLauncher) Launch(content Content) (Process, error) {
	var cmd *exec.Cmd
	switch content.Kind {
	case KindWeb:
		args := []string{
			"--kiosk",
			"--noerrdialogs",
			"--disable-infobars",
			"--no-first-run",
			"--disable-session-crashed-bubble",
			fmt.Sprintf("--remote-debugging-port=%d", l.opts.DebugPort),
		}
		args = append(args, readExtraFlags(l.opts.FlagsFile)...)
		args = append(args, content.URL)
		cmd = exec.Command(l.opts.ChromiumBinary, args...)
	case KindVideo, KindAudio:
		cmd = exec.Command(l.opts.MpvBinary,
			"--fullscreen",
			"--no-terminal",
			"--no-input-default-bindings",
			content.Path,
		)
	case KindImage:
		cmd = exec.Command(l.opts.ImvBinary, "-f", content.Path)
	default:
		return nil, fmt.Errorf("unknown content kind %q", content.Kind)
	}
	// a process group lets termination reach the renderer's children
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

// readExtraFlags loads one flag per line from the flags file, skipping
// blanks and comments. A missing file is not an error.
func readExtraFlags(path string) []string {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var flags []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		flags = append(flags, line)
	}
	return flags
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Terminate() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
}
