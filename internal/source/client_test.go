package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/octopus-project/ipcm-indexer/internal/common"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/pkg/config"
	"github.com/octopus-project/ipcm-indexer/pkg/source"
)

// rpcHandler dispatches JSON-RPC methods to test callbacks.
type rpcHandler struct {
	latestLedger func() (latestLedgerResult, *rpcError)
	getLedgers   func(getLedgersParams) (getLedgersResult, *rpcError)
	getEvents    func(getEventsParams) (getEventsResult, *rpcError)
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int             `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		result any
		rpcErr *rpcError
	)
	switch req.Method {
	case "getLatestLedger":
		result, rpcErr = h.latestLedger()
	case "getLedgers":
		var params getLedgersParams
		json.Unmarshal(req.Params, &params) //nolint:errcheck
		result, rpcErr = h.getLedgers(params)
	case "getEvents":
		var params getEventsParams
		json.Unmarshal(req.Params, &params) //nolint:errcheck
		result, rpcErr = h.getEvents(params)
	default:
		rpcErr = &rpcError{Code: -32601, Message: "method not found"}
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

func testSourceConfig(url string) config.SourceConfig {
	cfg := config.SourceConfig{
		RPCURL:       url,
		ContractIDs:  []string{"CIPCM", "CNFT"},
		PageLimit:    10,
		PollInterval: common.NewDuration(5 * time.Millisecond),
		Retry: &config.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: common.NewDuration(time.Millisecond),
			MaxBackoff:     common.NewDuration(2 * time.Millisecond),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// staticChain serves a linear chain of ledgers with the given events.
func staticChain(latest uint64, events []eventInfo) *rpcHandler {
	return &rpcHandler{
		latestLedger: func() (latestLedgerResult, *rpcError) {
			return latestLedgerResult{Sequence: latest}, nil
		},
		getLedgers: func(p getLedgersParams) (getLedgersResult, *rpcError) {
			var ledgers []ledgerInfo
			for seq := p.StartLedger; seq <= latest && uint64(len(ledgers)) < p.Pagination.Limit; seq++ {
				ledgers = append(ledgers, ledgerInfo{
					Sequence:   seq,
					Hash:       fmt.Sprintf("hash-%d", seq),
					ParentHash: fmt.Sprintf("hash-%d", seq-1),
					ClosedAt:   time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * 5 * time.Second),
				})
			}
			return getLedgersResult{Ledgers: ledgers, LatestLedger: latest}, nil
		},
		getEvents: func(p getEventsParams) (getEventsResult, *rpcError) {
			var out []eventInfo
			for _, ev := range events {
				if ev.Ledger >= p.StartLedger && ev.Ledger <= p.EndLedger {
					out = append(out, ev)
				}
			}
			return getEventsResult{Events: out, LatestLedger: latest}, nil
		},
	}
}

func updateMapEvent(ledger uint64, index uint32, tokenID, cid string) eventInfo {
	value, _ := json.Marshal(map[string]string{
		"tokenId": tokenID, "oldCid": "", "cid": cid, "caller": "GUPDATER",
	})
	return eventInfo{
		Ledger:         ledger,
		EventIndex:     index,
		ContractID:     "CIPCM",
		LedgerClosedAt: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		Topic:          []string{"UPDATE_MAP", tokenID},
		Value:          value,
	}
}

func TestLatestLedger(t *testing.T) {
	srv := httptest.NewServer(staticChain(42, nil))
	defer srv.Close()

	client := NewHTTPClient(testSourceConfig(srv.URL), logger.NewNopLogger())
	seq, err := client.LatestLedger(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), seq)
}

func TestCallRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	inner := staticChain(42, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	client := NewHTTPClient(testSourceConfig(srv.URL), logger.NewNopLogger())
	seq, err := client.LatestLedger(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), seq)
	require.Equal(t, int32(3), calls.Load())
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(testSourceConfig(srv.URL), logger.NewNopLogger())
	_, err := client.LatestLedger(context.Background())
	require.ErrorIs(t, err, source.ErrSourceUnavailable)
	require.Equal(t, int32(3), calls.Load())
}

func TestSubscribePrunedCursor(t *testing.T) {
	handler := staticChain(42, nil)
	handler.getLedgers = func(p getLedgersParams) (getLedgersResult, *rpcError) {
		return getLedgersResult{}, &rpcError{
			Code:    codeLedgerPruned,
			Message: "start is before the oldest ledger",
		}
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := NewHTTPClient(testSourceConfig(srv.URL), logger.NewNopLogger())
	_, err := client.Subscribe(context.Background(), 1)
	require.ErrorIs(t, err, source.ErrInvalidCursor)
}

func TestSubscriptionDeliversOrderedBatches(t *testing.T) {
	events := []eventInfo{
		// Deliberately out of index order within ledger 101.
		updateMapEvent(101, 2, "token-1", "Qm222"),
		updateMapEvent(101, 0, "token-2", "QmAAA"),
		updateMapEvent(100, 0, "token-1", "Qm111"),
	}
	srv := httptest.NewServer(staticChain(102, events))
	defer srv.Close()

	cfg := testSourceConfig(srv.URL)
	client := NewHTTPClient(cfg, logger.NewNopLogger())
	ctx := context.Background()

	sub, err := client.Subscribe(ctx, 100)
	require.NoError(t, err)
	defer sub.Close()

	b100, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(100), b100.Seq)
	require.Equal(t, "hash-100", b100.Hash)
	require.Equal(t, "hash-99", b100.ParentHash)
	require.Len(t, b100.Events, 1)
	require.Equal(t, "Qm111", b100.Events[0].CID)

	b101, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Len(t, b101.Events, 2)
	require.Equal(t, uint32(0), b101.Events[0].EventIndex)
	require.Equal(t, "QmAAA", b101.Events[0].CID)
	require.Equal(t, uint32(2), b101.Events[1].EventIndex)

	b102, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(102), b102.Seq)
	require.Empty(t, b102.Events)
}

func TestSubscriptionPollsAtTip(t *testing.T) {
	var latest atomic.Uint64
	latest.Store(100)

	handler := staticChain(100, nil)
	handler.latestLedger = func() (latestLedgerResult, *rpcError) {
		return latestLedgerResult{Sequence: latest.Load()}, nil
	}
	handler.getLedgers = func(p getLedgersParams) (getLedgersResult, *rpcError) {
		tip := latest.Load()
		var ledgers []ledgerInfo
		for seq := p.StartLedger; seq <= tip && uint64(len(ledgers)) < p.Pagination.Limit; seq++ {
			ledgers = append(ledgers, ledgerInfo{
				Sequence: seq, Hash: fmt.Sprintf("hash-%d", seq), ParentHash: fmt.Sprintf("hash-%d", seq-1),
			})
		}
		return getLedgersResult{Ledgers: ledgers, LatestLedger: tip}, nil
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := NewHTTPClient(testSourceConfig(srv.URL), logger.NewNopLogger())
	ctx := context.Background()

	sub, err := client.Subscribe(ctx, 100)
	require.NoError(t, err)
	defer sub.Close()

	b, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(100), b.Seq)

	// The tip has not advanced yet; Next must wait for it rather than fail.
	go func() {
		time.Sleep(20 * time.Millisecond)
		latest.Store(101)
	}()

	b, err = sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(101), b.Seq)
}

func TestSubscriptionNextAfterClose(t *testing.T) {
	srv := httptest.NewServer(staticChain(100, nil))
	defer srv.Close()

	client := NewHTTPClient(testSourceConfig(srv.URL), logger.NewNopLogger())
	sub, err := client.Subscribe(context.Background(), 100)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	_, err = sub.Next(context.Background())
	require.Error(t, err)
}
