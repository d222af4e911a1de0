package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/pkg/config"
	"github.com/octopus-project/ipcm-indexer/pkg/source"
)

// Compile-time check to ensure HTTPClient implements source.Client.
var _ source.Client = (*HTTPClient)(nil)

// RPC error code returned when the requested start ledger has been pruned
// from the node's retention window.
const codeLedgerPruned = -32003

// HTTPClient talks JSON-RPC over HTTP to a soroban-rpc style endpoint.
// Individual calls are bounded by the configured request timeout and
// retried with exponential backoff on transient failures.
type HTTPClient struct {
	cfg  config.SourceConfig
	http *http.Client
	log  *logger.Logger
}

// NewHTTPClient creates a new chain RPC client.
func NewHTTPClient(cfg config.SourceConfig, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout.Duration},
		log:  log,
	}
}

// LatestLedger returns the sequence of the most recent closed ledger.
func (c *HTTPClient) LatestLedger(ctx context.Context) (uint64, error) {
	var result latestLedgerResult
	if err := c.callWithRetry(ctx, "getLatestLedger", nil, &result); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

// Subscribe opens a pull-based subscription starting at fromLedger.
func (c *HTTPClient) Subscribe(ctx context.Context, fromLedger uint64) (source.Subscription, error) {
	// Probe the cursor immediately so an unservable resume point surfaces
	// as ErrInvalidCursor at subscribe time rather than on the first Next.
	if _, err := c.getLedgers(ctx, fromLedger, fromLedger); err != nil {
		if errors.Is(err, source.ErrInvalidCursor) {
			return nil, err
		}
		// Transient failures are fine here; Next will retry.
		if !errors.Is(err, source.ErrSourceUnavailable) {
			return nil, err
		}
	}

	return &subscription{
		client: c,
		next:   fromLedger,
	}, nil
}

// getLedgers fetches ledger headers for [from, to] inclusive.
func (c *HTTPClient) getLedgers(ctx context.Context, from, to uint64) ([]ledgerInfo, error) {
	params := getLedgersParams{
		StartLedger: from,
		Pagination:  paginationParams{Limit: to - from + 1},
	}

	var result getLedgersResult
	if err := c.callWithRetry(ctx, "getLedgers", params, &result); err != nil {
		return nil, err
	}

	ledgers := make([]ledgerInfo, 0, len(result.Ledgers))
	for _, l := range result.Ledgers {
		if l.Sequence > to {
			break
		}
		ledgers = append(ledgers, l)
	}
	return ledgers, nil
}

// getEvents fetches all subscribed contract events in [from, to] inclusive,
// following the RPC's pagination cursor until the range is exhausted.
func (c *HTTPClient) getEvents(ctx context.Context, from, to uint64) ([]eventInfo, error) {
	var (
		events []eventInfo
		cursor string
	)

	for {
		params := getEventsParams{
			StartLedger: from,
			EndLedger:   to,
			Filters: []eventFilter{
				{Type: "contract", ContractIDs: c.cfg.ContractIDs},
			},
			Pagination: paginationParams{Limit: c.cfg.PageLimit, Cursor: cursor},
		}
		// A cursor supersedes the explicit start ledger.
		if cursor != "" {
			params.StartLedger = 0
		}

		var result getEventsResult
		if err := c.callWithRetry(ctx, "getEvents", params, &result); err != nil {
			return nil, err
		}

		for _, ev := range result.Events {
			if ev.Ledger > to {
				return events, nil
			}
			events = append(events, ev)
		}

		if result.Cursor == "" || len(result.Events) == 0 {
			return events, nil
		}
		cursor = result.Cursor
	}
}

// callWithRetry executes a JSON-RPC call, retrying transient failures with
// exponential backoff up to the configured attempt budget.
func (c *HTTPClient) callWithRetry(ctx context.Context, method string, params, result any) error {
	operation := func() error {
		err := c.call(ctx, method, params, result)
		if err == nil {
			return nil
		}
		if errors.Is(err, source.ErrSourceUnavailable) {
			c.log.Debugf("transient rpc failure on %s, retrying: %v", method, err)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Retry.InitialBackoff.Duration
	b.MaxInterval = c.cfg.Retry.MaxBackoff.Duration
	b.Multiplier = c.cfg.Retry.BackoffMultiplier
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if c.cfg.Retry.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.cfg.Retry.MaxAttempts-1))
	}

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

// call executes a single JSON-RPC request.
func (c *HTTPClient) call(ctx context.Context, method string, params, result any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", source.ErrSourceUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if retryableStatus(resp.StatusCode) {
			return fmt.Errorf("%w: %s: status %d: %s", source.ErrSourceUnavailable, method, resp.StatusCode, body)
		}
		return fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, body)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", source.ErrSourceUnavailable, method, err)
	}

	if rpcResp.Error != nil {
		if rpcResp.Error.Code == codeLedgerPruned ||
			strings.Contains(strings.ToLower(rpcResp.Error.Message), "before the oldest ledger") {
			return fmt.Errorf("%w: %s", source.ErrInvalidCursor, rpcResp.Error.Message)
		}
		return fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", method, err)
	}
	return nil
}

// retryableStatus reports whether an HTTP status indicates a transient fault.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusInternalServerError:
		return true
	default:
		return false
	}
}
