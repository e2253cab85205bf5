// Package ics adapts ICS calendar feeds into the engine's event source.
// Feeds are fetched per pass, parsed, and expanded into concrete
// occurrences inside the lookahead window.
package ics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rivercweiss/chime/internal/model"
)

// Source is a single ICS subscription.
type Source struct {
	// ID is the calendar id rules scope against.
	ID string
	// Name is the display name shown in CLI output.
	Name string
	// URL is an http(s) endpoint or a local file path.
	URL string
}

const defaultFetchTimeout = 15 * time.Second

// Client fetches and expands a set of ICS sources. It implements the
// engine's EventSource.
type Client struct {
	sources []Source
	client  *http.Client
}

// NewClient returns a client over the given sources.
func NewClient(sources []Source) *Client {
	return &Client{
		sources: sources,
		client:  &http.Client{Timeout: defaultFetchTimeout},
	}
}

// EventsInWindow fetches every source and returns the occurrences with a
// start in [now, now+horizon). Any unreadable source fails the whole call;
// the caller must not act on a partial view of the calendars.
func (c *Client) EventsInWindow(ctx context.Context, now time.Time, horizon time.Duration) ([]model.Event, error) {
	windowEnd := now.Add(horizon)
	var out []model.Event

	for _, src := range c.sources {
		body, err := c.fetch(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}

		parsed, err := parseCalendar(body)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}

		events := expandWindow(src, parsed, now, windowEnd)
		slog.Debug("ics source expanded",
			"source", src.ID, "vevents", len(parsed), "occurrences", len(events))
		out = append(out, events...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CalendarNames maps source ids to display names.
func (c *Client) CalendarNames(ctx context.Context) (map[string]string, error) {
	names := make(map[string]string, len(c.sources))
	for _, src := range c.sources {
		name := src.Name
		if name == "" {
			name = src.ID
		}
		names[src.ID] = name
	}
	return names, nil
}

func (c *Client) fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, fmt.Errorf("source URL is empty")
	}

	if strings.HasPrefix(src.URL, "http://") || strings.HasPrefix(src.URL, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", src.URL, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}

	return os.ReadFile(src.URL)
}
