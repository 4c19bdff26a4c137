/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// DevTools drives the kiosk browser over the Chrome DevTools protocol, so
// navigation and history actions work without restarting the browser.
type DevTools struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewDevTools builds a client against the browser's remote debugging port.
func NewDevTools(port int, log zerolog.Logger) *DevTools {
	if port == 0 {
		port = 9222
	}
	return &DevTools{
		endpoint: fmt.Sprintf("http://127.0.0.1:%d", port),
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      log.With().Str("component", "devtools").Logger(),
	}
}

type debugTarget struct {
	Type                 string `json:"type"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// pageSocket discovers the debugger websocket for the first page target.
func (d *DevTools) pageSocket(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/json", nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("devtools unreachable: %w", err)
	}
	defer resp.Body.Close()
	var targets []debugTarget
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", fmt.Errorf("devtools target list: %w", err)
	}
	for _, target := range targets {
		if target.Type == "page" && target.WebSocketDebuggerURL != "" {
			return target.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("no debuggable page target")
}

type cdpRequest struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// call opens a debugger session, issues one method and waits for its reply.
// Event notifications interleaved on the socket are skipped.
func (d *DevTools) call(ctx context.Context, method string, params any, result any) error {
	socket, err := d.pageSocket(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, socket, nil)
	if err != nil {
		return fmt.Errorf("devtools dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	const callID = 1
	if err := wsjson.Write(ctx, conn, cdpRequest{ID: callID, Method: method, Params: params}); err != nil {
		return fmt.Errorf("devtools %s: %w", method, err)
	}
	for {
		var resp cdpResponse
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			return fmt.Errorf("devtools %s: %w", method, err)
		}
		if resp.ID != callID {
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("devtools %s: %s", method, resp.Error.Message)
		}
		if result != nil && resp.Result != nil {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	}
}

// Navigate points the current page at a new URL.
func (d *DevTools) Navigate(ctx context.Context, url string) error {
	return d.call(ctx, "Page.navigate", map[string]string{"url": url}, nil)
}

// Reload refreshes the current page, ignoring cache.
func (d *DevTools) Reload(ctx context.Context) error {
	return d.call(ctx, "Page.reload", map[string]bool{"ignoreCache": true}, nil)
}

type navigationHistory struct {
	CurrentIndex int `json:"currentIndex"`
	Entries      []struct {
		ID int `json:"id"`
	} `json:"entries"`
}

// Back steps one entry back in the page history.
func (d *DevTools) Back(ctx context.Context) error {
	return d.historyStep(ctx, -1)
}

// Forward steps one entry forward in the page history.
func (d *DevTools) Forward(ctx context.Context) error {
	return d.historyStep(ctx, 1)
}

func (d *DevTools) historyStep(ctx context.Context, delta int) error {
	var history navigationHistory
	if err := d.call(ctx, "Page.getNavigationHistory", nil, &history); err != nil {
		return err
	}
	target := history.CurrentIndex + delta
	if target < 0 || target >= len(history.Entries) {
		return fmt.Errorf("no history entry at offset %d", delta)
	}
	return d.call(ctx, "Page.navigateToHistoryEntry", map[string]int{"entryId": history.Entries[target].ID}, nil)
}
