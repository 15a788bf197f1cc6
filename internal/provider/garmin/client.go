// Package garmin wraps the Garmin Connect REST API as the remote activity
// provider.
package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"example.com/trainlog/internal/domain"
)

// Client talks to Garmin Connect. It only covers the two collaborator
// operations the pipeline needs: list recent summaries and fetch the raw
// activity document.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client. A zero timeout leaves per-call deadlines to
// the caller's context.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListRecent fetches the limit most recent activity summaries, normalized
// into the common remote-ride shape. Provider return order is preserved.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]domain.RemoteRide, error) {
	endpoint := fmt.Sprintf("%s/activitylist-service/activities/search/activities?start=0&limit=%d", c.baseURL, limit)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, &domain.ProviderError{Provider: domain.ProviderGarmin, Op: "list activities", Err: err}
	}

	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &domain.ProviderError{Provider: domain.ProviderGarmin, Op: "list activities", Err: err}
	}

	rides := make([]domain.RemoteRide, 0, len(items))
	for _, item := range items {
		ride, ok := mapSummaryItem(item)
		if !ok {
			continue
		}
		rides = append(rides, ride)
	}
	return rides, nil
}

// FetchPayload retrieves the raw activity document for one external id. The
// document is returned unmodified; decoding happens downstream.
func (c *Client) FetchPayload(ctx context.Context, externalID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/activity-service/activity/%s", c.baseURL, url.PathEscape(externalID))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, &domain.ProviderError{Provider: domain.ProviderGarmin, Op: "fetch activity " + externalID, Err: err}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrRemoteNotFound
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	return io.ReadAll(resp.Body)
}

func truncate(data []byte, max int) string {
	if len(data) > max {
		data = data[:max]
	}
	return string(data)
}
