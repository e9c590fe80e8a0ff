package edm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// Client implements domain.MonitorSource against a water company's Event
// Duration Monitoring API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates an EDM API client. clientID and clientSecret may be
// empty for operators with open feeds.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchActiveMonitors retrieves the operator's installed monitors with their
// current status. Records with an unrecognized status are skipped with a
// diagnostic so one malformed row cannot sink the refresh.
func (c *Client) FetchActiveMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	var resp monitorListResponse
	if err := c.get(ctx, "/monitors", nil, &resp); err != nil {
		return nil, err
	}

	monitors := make([]*domain.Monitor, 0, len(resp.Items))
	for _, rec := range resp.Items {
		m, err := mapMonitorRecord(rec)
		if err != nil {
			c.logger.Warn("skipping malformed monitor record",
				"monitor", rec.ID,
				"error", err,
			)
			continue
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

// FetchMonitorHistory retrieves the full event record for one monitor.
func (c *Client) FetchMonitorHistory(ctx context.Context, monitorID string) ([]domain.Event, error) {
	params := url.Values{"monitor": {monitorID}}
	var resp eventListResponse
	if err := c.get(ctx, "/events", params, &resp); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(resp.Items))
	for _, rec := range resp.Items {
		ev, err := mapEventRecord(monitorID, rec)
		if err != nil {
			c.logger.Warn("skipping malformed event record",
				"monitor", monitorID,
				"start", rec.StartTime,
				"error", err,
			)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.clientID != "" {
		req.Header.Set("client_id", c.clientID)
		req.Header.Set("client_secret", c.clientSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("edm request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("edm API error: status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapMonitorRecord(rec MonitorRecord) (*domain.Monitor, error) {
	m, err := domain.NewMonitor(rec.ID, rec.SiteName, rec.X, rec.Y, rec.Watercourse)
	if err != nil {
		return nil, err
	}
	start, err := time.Parse(time.RFC3339, rec.StatusSince)
	if err != nil {
		return nil, fmt.Errorf("status_since: %w", err)
	}
	ev, err := domain.NewOngoingEvent(rec.ID, domain.EventKind(rec.Status), start)
	if err != nil {
		return nil, err
	}
	if err := m.SetCurrentEvent(ev); err != nil {
		return nil, err
	}
	if rec.DischargeInLast48h != nil {
		m.SetDischargedInLast48h(*rec.DischargeInLast48h)
	}
	return m, nil
}

func mapEventRecord(monitorID string, rec EventRecord) (domain.Event, error) {
	start, err := time.Parse(time.RFC3339, rec.StartTime)
	if err != nil {
		return domain.Event{}, fmt.Errorf("start_time: %w", err)
	}
	kind := domain.EventKind(rec.Status)
	if rec.EndTime == "" {
		return domain.NewOngoingEvent(monitorID, kind, start)
	}
	end, err := time.Parse(time.RFC3339, rec.EndTime)
	if err != nil {
		return domain.Event{}, fmt.Errorf("end_time: %w", err)
	}
	return domain.NewClosedEvent(monitorID, kind, start, end)
}

// EDM API wire types.

type monitorListResponse struct {
	Items []MonitorRecord `json:"items"`
}

// MonitorRecord is one monitor row as the EDM API serves it.
type MonitorRecord struct {
	ID                 string  `json:"id"`
	SiteName           string  `json:"site_name"`
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	Watercourse        string  `json:"receiving_watercourse"`
	Status             string  `json:"status"`
	StatusSince        string  `json:"status_since"`
	DischargeInLast48h *bool   `json:"discharge_in_last_48h"`
}

type eventListResponse struct {
	Items []EventRecord `json:"items"`
}

// EventRecord is one history row as the EDM API serves it. EndTime is empty
// for the ongoing event.
type EventRecord struct {
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time,omitempty"`
}
