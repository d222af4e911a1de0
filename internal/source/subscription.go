package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/octopus-project/ipcm-indexer/pkg/source"
)

// Compile-time check to ensure subscription implements source.Subscription.
var _ source.Subscription = (*subscription)(nil)

// subscription is a pull-based cursor over closed ledgers. It buffers one
// RPC page of ledger batches at a time and polls for new ledgers once
// caught up to the chain tip.
type subscription struct {
	client *HTTPClient
	next   uint64
	buf    []*source.LedgerBatch
	closed bool
}

// Next returns the next ledger batch, blocking until one is available or
// the context is cancelled.
func (s *subscription) Next(ctx context.Context) (*source.LedgerBatch, error) {
	if s.closed {
		return nil, fmt.Errorf("subscription closed")
	}

	for len(s.buf) == 0 {
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}

	batch := s.buf[0]
	s.buf = s.buf[1:]
	return batch, nil
}

// Close releases the subscription. The underlying HTTP client is shared
// and stays open.
func (s *subscription) Close() error {
	s.closed = true
	s.buf = nil
	return nil
}

// fill fetches the next page of ledgers and their events, waiting for the
// chain tip to advance when there is nothing new to fetch.
func (s *subscription) fill(ctx context.Context) error {
	latest, err := s.client.LatestLedger(ctx)
	if err != nil {
		return err
	}

	if s.next > latest {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.client.cfg.PollInterval.Duration):
			return nil
		}
	}

	from := s.next
	to := min(from+s.client.cfg.PageLimit-1, latest)

	ledgers, err := s.client.getLedgers(ctx, from, to)
	if err != nil {
		return err
	}
	if len(ledgers) == 0 {
		return fmt.Errorf("%w: empty ledger page for range %d-%d", source.ErrSourceUnavailable, from, to)
	}

	events, err := s.client.getEvents(ctx, from, to)
	if err != nil {
		return err
	}

	byLedger := make(map[uint64][]source.RawEvent)
	for _, ev := range events {
		decoded, ok, err := decodeEvent(ev)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		byLedger[decoded.LedgerSeq] = append(byLedger[decoded.LedgerSeq], decoded)
	}

	for _, l := range ledgers {
		batchEvents := byLedger[l.Sequence]
		sort.Slice(batchEvents, func(i, j int) bool {
			return batchEvents[i].EventIndex < batchEvents[j].EventIndex
		})

		s.buf = append(s.buf, &source.LedgerBatch{
			Seq:        l.Sequence,
			Hash:       l.Hash,
			ParentHash: l.ParentHash,
			ClosedAt:   l.ClosedAt,
			Events:     batchEvents,
		})
		s.next = l.Sequence + 1
	}

	return nil
}
