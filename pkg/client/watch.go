package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Watch subscribes to the change feed. When transferID is non-nil only that
// transfer's events are delivered. The returned channel is closed when ctx is
// cancelled or the stream ends. Heartbeats are not delivered.
func (c *Client) Watch(ctx context.Context, transferID *uuid.UUID) (<-chan Event, error) {
	path := "/api/v1/transfers/stream"
	if transferID != nil {
		path += "?transfer_id=" + transferID.String()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	// The stream is long-lived; the client timeout must not apply.
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		readStream(ctx, resp.Body, out)
	}()
	return out, nil
}

// readStream parses server-sent events from r.
func readStream(ctx context.Context, r io.Reader, out chan<- Event) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var eventType string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventType != "" && eventType != "ready" && eventType != "heartbeat" && data.Len() > 0 {
				var ev Event
				raw := []byte(data.String())
				if err := json.Unmarshal(raw, &ev); err == nil {
					ev.Raw = raw
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
