// Package account talks to the account service: online status, last-seen
// heartbeat and the friends list.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/msniranjan18/chhavinity/pkg/models"
)

var (
	ErrUnauthorized = errors.New("account: unauthorized")
	ErrUnexpected   = errors.New("account: unexpected response")
)

// Service is what the presence publisher and watch bootstrapper need from
// the account service.
type Service interface {
	SetOnlineStatus(ctx context.Context, online bool) error
	TouchLastSeen(ctx context.Context) error
	GetFriends(ctx context.Context) ([]models.Friend, error)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) SetOnlineStatus(ctx context.Context, online bool) error {
	c.logger.Debug("Setting online status", "is_online", online)
	body, err := json.Marshal(models.OnlineStatusRequest{IsOnline: online})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/api/users/online-status", body, nil)
}

func (c *Client) TouchLastSeen(ctx context.Context) error {
	c.logger.Debug("Sending last-seen heartbeat")
	return c.do(ctx, http.MethodPut, "/api/users/last-seen", nil, nil)
}

func (c *Client) GetFriends(ctx context.Context) ([]models.Friend, error) {
	var friends []models.Friend
	if err := c.do(ctx, http.MethodGet, "/api/users/friends", nil, &friends); err != nil {
		return nil, err
	}
	c.logger.Debug("Friends fetched", "count", len(friends))
	return friends, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %d %s", ErrUnexpected, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
