package matchmaking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
)

// AuthoritativeClient talks to the dedicated matchmaking backend that
// can atomically create or locate a session for a pair of players. It
// is treated as fallible and slow: every call carries a hard timeout
// and failures are absorbed by the optimistic path.
type AuthoritativeClient interface {
	CreateOrFind(ctx context.Context, gameMode string, matchType gametypes.MatchType, players [2]gametypes.Profile) (string, error)
}

// HTTPAuthoritativeClient is the HTTP implementation of
// AuthoritativeClient.
type HTTPAuthoritativeClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

type NewHTTPAuthoritativeClientOptions struct {
	BaseURL string
	Timeout time.Duration
}

func NewHTTPAuthoritativeClient(opts NewHTTPAuthoritativeClientOptions) *HTTPAuthoritativeClient {
	return &HTTPAuthoritativeClient{
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
		client:  &http.Client{},
	}
}

type createOrFindRequest struct {
	GameMode  string              `json:"gameMode"`
	MatchType gametypes.MatchType `json:"matchType"`
	Players   []gametypes.Profile `json:"players"`
}

type createOrFindResponse struct {
	SessionID string `json:"sessionId"`
}

func (c *HTTPAuthoritativeClient) CreateOrFind(ctx context.Context, gameMode string, matchType gametypes.MatchType, players [2]gametypes.Profile) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(createOrFindRequest{
		GameMode:  gameMode,
		MatchType: matchType,
		Players:   players[:],
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ErrAuthoritativeUnavailable{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ErrAuthoritativeUnavailable{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var decoded createOrFindResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &ErrAuthoritativeUnavailable{Err: fmt.Errorf("failed to decode response: %v", err)}
	}
	if decoded.SessionID == "" {
		return "", &ErrAuthoritativeUnavailable{Err: fmt.Errorf("empty session id in response")}
	}

	return decoded.SessionID, nil
}

// DisabledAuthoritativeClient is used when no matchmaking backend is
// configured. Every session stays on the optimistic path.
type DisabledAuthoritativeClient struct {
}

func NewDisabledAuthoritativeClient() *DisabledAuthoritativeClient {
	return &DisabledAuthoritativeClient{}
}

func (c *DisabledAuthoritativeClient) CreateOrFind(ctx context.Context, gameMode string, matchType gametypes.MatchType, players [2]gametypes.Profile) (string, error) {
	return "", &ErrAuthoritativeUnavailable{Err: fmt.Errorf("no matchmaking backend configured")}
}
