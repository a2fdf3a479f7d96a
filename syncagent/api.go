package syncagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/akinalp/agora/models"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// envelope mirrors pkg.APIResponse with the payload left raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (c *apiClient) listNotifications(ctx context.Context, limit int) (*models.NotificationPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var page models.NotificationPage
	if err := c.do(ctx, http.MethodGet, "/api/notifications?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *apiClient) markRead(ctx context.Context, id string) (*models.MarkReadResult, error) {
	var result models.MarkReadResult
	if err := c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) markAllRead(ctx context.Context) (*models.MarkAllReadResult, error) {
	var result models.MarkAllReadResult
	if err := c.do(ctx, http.MethodPost, "/api/notifications/read-all", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
