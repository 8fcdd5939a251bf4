package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Counter records user-visible actions. Implementations are best effort:
// Bump never blocks the caller and never reports failure.
type Counter interface {
	Bump(group, names string)
}

// Nop is a Counter that records nothing.
type Nop struct{}

// Bump does nothing.
func (Nop) Bump(string, string) {}

// jetpackGroups are the groups that get a -jetpack suffix when the client
// is embedded in a Jetpack site.
var jetpackGroups = map[string]bool{
	"notes-menu-impressions": true,
	"notes-menu-clicks":      true,
}

// StatsCounter reports events to a pixel-style stats endpoint with one
// GET request per event.
type StatsCounter struct {
	endpoint   string
	jetpack    bool
	httpClient *http.Client
	log        logrus.FieldLogger
}

// NewStatsCounter creates a counter posting to endpoint.
func NewStatsCounter(endpoint string, jetpack bool, log logrus.FieldLogger) *StatsCounter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StatsCounter{
		endpoint:   endpoint,
		jetpack:    jetpack,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

// Bump sends the event in the background. names may be a comma-separated
// list.
func (c *StatsCounter) Bump(group, names string) {
	target := c.url(group, names)
	go func() {
		if err := c.send(target); err != nil {
			c.log.WithError(err).WithField("group", group).Debug("stats bump failed")
		}
	}()
}

// url builds the request URL. The random parameter defeats caches.
func (c *StatsCounter) url(group, names string) string {
	if c.jetpack && jetpackGroups[group] {
		parts := strings.Split(names, ",")
		for i, p := range parts {
			parts[i] = p + "-jetpack"
		}
		names = strings.Join(parts, ",")
	}

	q := url.Values{}
	q.Set("v", "wpcom-no-pv")
	q.Set("x_"+group, names)
	q.Set("baba", uuid.NewString())
	return c.endpoint + "?" + q.Encode()
}

func (c *StatsCounter) send(target string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating stats request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending stats request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("stats endpoint returned %d", resp.StatusCode)
	}
	return nil
}
