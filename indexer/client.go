// Package indexer is the client for the transaction indexing service: the
// off-chain source of recommended nonces, transaction history, and the
// internal transaction records produced by role-routed executions.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/multisigkit/intent-engine/pkg/logger"
)

// ErrNotIndexed reports that the service has no record for the query yet.
// Role executions land in the index with a delay, so callers poll on it.
var ErrNotIndexed = errors.New("transaction not indexed yet")

// SafeInfo is the indexer's view of a wallet.
type SafeInfo struct {
	Address   common.Address `json:"address"`
	Nonce     uint64         `json:"nonce"`
	Threshold uint64         `json:"threshold"`
	// RecommendedNonce accounts for queued proposals above the on-chain
	// nonce.
	RecommendedNonce uint64 `json:"recommendedNonce"`
}

// MultisigTransaction is one historical wallet transaction record.
type MultisigTransaction struct {
	SafeTxHash    common.Hash    `json:"safeTxHash"`
	To            common.Address `json:"to"`
	Value         string         `json:"value"`
	Data          string         `json:"data"`
	Nonce         uint64         `json:"nonce"`
	IsExecuted    bool           `json:"isExecuted"`
	Submitted     time.Time      `json:"submissionDate"`
	TxHash        *common.Hash   `json:"transactionHash"`
	Confirmations []Confirmation `json:"confirmations"`
}

// Confirmation is one collected owner signature on a proposal.
type Confirmation struct {
	Owner     common.Address `json:"owner"`
	Signature string         `json:"signature"`
}

// ModuleTransaction is an internal transaction executed through a module
// (such as a role modifier), keyed by the on-chain transaction hash.
type ModuleTransaction struct {
	TxHash    common.Hash    `json:"transactionHash"`
	Safe      common.Address `json:"safe"`
	Module    common.Address `json:"module"`
	To        common.Address `json:"to"`
	IsSuccess bool           `json:"isSuccessful"`
}

// Proposal is the payload submitted when a new wallet transaction is
// proposed.
type Proposal struct {
	Safe       common.Address `json:"safe"`
	To         common.Address `json:"to"`
	Value      string         `json:"value"`
	Data       string         `json:"data"`
	Operation  uint8          `json:"operation"`
	Nonce      uint64         `json:"nonce"`
	SafeTxHash common.Hash    `json:"safeTxHash"`
	Sender     common.Address `json:"sender"`
	Signature  string         `json:"signature"`
}

// Client talks to the indexing service over its JSON REST API.
type Client struct {
	baseURL string
	client  *http.Client
	lggr    logger.Logger
}

// NewClient returns a Client for the service at baseURL. httpClient may be
// nil, in which case a client with a sane timeout is used.
func NewClient(baseURL string, httpClient *http.Client, lggr logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{baseURL: baseURL, client: httpClient, lggr: lggr.Named("Indexer")}
}

// SafeInfo fetches the indexer's view of the wallet, including the
// recommended nonce for the next proposal.
func (c *Client) SafeInfo(ctx context.Context, safe common.Address) (SafeInfo, error) {
	var info SafeInfo
	err := c.getJSON(ctx, fmt.Sprintf("/v1/safes/%s", url.PathEscape(safe.Hex())), &info)
	if err != nil {
		return SafeInfo{}, fmt.Errorf("failed to fetch safe info for %s: %w", safe, err)
	}

	return info, nil
}

// RecommendedNonce returns the nonce the next proposal should use.
func (c *Client) RecommendedNonce(ctx context.Context, safe common.Address) (uint64, error) {
	info, err := c.SafeInfo(ctx, safe)
	if err != nil {
		return 0, err
	}

	return info.RecommendedNonce, nil
}

// MultisigTransactions lists the wallet's transaction history, newest first.
func (c *Client) MultisigTransactions(ctx context.Context, safe common.Address) ([]MultisigTransaction, error) {
	var out struct {
		Results []MultisigTransaction `json:"results"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("/v1/safes/%s/multisig-transactions", url.PathEscape(safe.Hex())), &out)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch multisig transactions for %s: %w", safe, err)
	}

	return out.Results, nil
}

// ModuleTransactionByHash looks up the internal transaction record a
// role-routed execution produced. Returns ErrNotIndexed until the service has
// processed the block.
func (c *Client) ModuleTransactionByHash(ctx context.Context, txHash common.Hash) (ModuleTransaction, error) {
	var out struct {
		Results []ModuleTransaction `json:"results"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("/v1/module-transactions?transaction_hash=%s", txHash.Hex()), &out)
	if err != nil {
		return ModuleTransaction{}, fmt.Errorf("failed to fetch module transaction %s: %w", txHash, err)
	}
	if len(out.Results) == 0 {
		return ModuleTransaction{}, ErrNotIndexed
	}

	return out.Results[0], nil
}

// Propose submits a new transaction proposal carrying the proposer's
// signature.
func (c *Client) Propose(ctx context.Context, proposal Proposal) error {
	body, err := json.Marshal(proposal)
	if err != nil {
		return fmt.Errorf("failed to encode proposal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/safes/%s/multisig-transactions",
		c.baseURL, url.PathEscape(proposal.Safe.Hex()))

	err = c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		return req, nil
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to propose transaction: %w", err)
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	endpoint := c.baseURL + path

	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, out)
}

// do executes the request with bounded retries on transient failures. 5xx and
// 429 responses retry; other non-2xx statuses fail immediately.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error), out any) error {
	return retry.Do(func() error {
		req, err := newReq()
		if err != nil {
			return retry.Unrecoverable(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("indexer returned status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return retry.Unrecoverable(fmt.Errorf("indexer returned status %d", resp.StatusCode))
		}
		if out == nil {
			return nil
		}

		return json.NewDecoder(resp.Body).Decode(out)
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
}
