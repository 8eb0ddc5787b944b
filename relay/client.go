// Package relay is the client for the gasless transaction relay: it submits
// fully-signed wallet transactions the relay pays gas for, and reports the
// remaining per-wallet submission quota.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/multisigkit/intent-engine/pkg/logger"
)

// DeclinedError reports that the relay refused a submission. Declines are a
// policy decision (quota, gas limits, denylists), not a transport failure,
// and are never retried by the client.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("relay declined submission: %s", e.Reason)
}

// Request is one relay submission: the wallet call with its full signature
// blob, plus the gas limit the relay should budget.
type Request struct {
	ChainID  uint64         `json:"chainId"`
	Safe     common.Address `json:"to"`
	Data     hexutil.Bytes  `json:"data"`
	GasLimit uint64         `json:"gasLimit,string"`
}

// Response is the relay's acceptance record for a submission.
type Response struct {
	// TaskID identifies the submission inside the relay for later lookup.
	TaskID string `json:"taskId"`
}

// Quota is the relay's remaining budget for a wallet.
type Quota struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetsAt  time.Time `json:"expiresAt"`
}

// Client talks to the relay service over its JSON API.
type Client struct {
	baseURL string
	client  *http.Client
	lggr    logger.Logger
}

// NewClient returns a Client for the relay at baseURL. httpClient may be nil,
// in which case a client with a sane timeout is used.
func NewClient(baseURL string, httpClient *http.Client, lggr logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{baseURL: baseURL, client: httpClient, lggr: lggr.Named("Relay")}
}

// Submit sends a fully-signed payload to the relay. A 4xx response is a
// decline and returns *DeclinedError.
func (c *Client) Submit(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode relay request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/relay", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var decline struct {
			Message string `json:"message"`
		}
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if json.NewDecoder(resp.Body).Decode(&decline) == nil && decline.Message != "" {
			reason = decline.Message
		}

		return Response{}, &DeclinedError{Reason: reason}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("failed to decode relay response: %w", err)
	}

	c.lggr.Infow("Relay accepted submission", "taskID", out.TaskID, "safe", req.Safe)

	return out, nil
}

// RemainingQuota returns the relay's remaining hourly budget for the wallet.
// A zero remaining quota makes the relay path unavailable.
func (c *Client) RemainingQuota(ctx context.Context, chainID uint64, safe common.Address) (Quota, error) {
	endpoint := fmt.Sprintf("%s/v1/relay/%d/%s/quota", c.baseURL, chainID, url.PathEscape(safe.Hex()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quota{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Quota{}, fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quota{}, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	var quota Quota
	if err := json.NewDecoder(resp.Body).Decode(&quota); err != nil {
		return Quota{}, fmt.Errorf("failed to decode relay quota: %w", err)
	}

	return quota, nil
}
