package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/octopus-project/ipcm-indexer/internal/checkpoint"
	"github.com/octopus-project/ipcm-indexer/internal/common"
	"github.com/octopus-project/ipcm-indexer/internal/history"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/internal/metrics"
	"github.com/octopus-project/ipcm-indexer/internal/reorg"
	"github.com/octopus-project/ipcm-indexer/pkg/config"
	"github.com/octopus-project/ipcm-indexer/pkg/source"
)

// resubscribeError signals that committed state was rewound by a reorg and
// the source subscription must restart from an earlier ledger. It is an
// internal control-flow error, never returned from Run.
type resubscribeError struct {
	from uint64
}

func (e *resubscribeError) Error() string {
	return fmt.Sprintf("resubscribe from ledger %d", e.from)
}

// Pipeline drives event ingestion: it subscribes to the source, commits
// each ledger batch atomically (history, window, checkpoint in one
// transaction) and reconciles chain reorganizations as they surface.
// A single consumer goroutine owns all writes.
type Pipeline struct {
	cfg    config.IngestConfig
	client source.Client
	db     *sql.DB

	history    *history.Store
	tokens     *history.TokenStore
	checkpoint *checkpoint.Store
	reconciler *reorg.Reconciler
	log        *logger.Logger

	state atomic.Int32

	// lastCommitted is owned by the consumer goroutine during a session and
	// only read externally through Committed.
	lastCommitted atomic.Uint64
}

// NewPipeline wires an ingestion pipeline over an open database.
func NewPipeline(
	cfg config.IngestConfig,
	client source.Client,
	database *sql.DB,
	hist *history.Store,
	tokens *history.TokenStore,
	cp *checkpoint.Store,
	rec *reorg.Reconciler,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		client:     client,
		db:         database,
		history:    hist,
		tokens:     tokens,
		checkpoint: cp,
		reconciler: rec,
		log:        log,
	}
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// StateName returns the current state as a string, for health reporting.
func (p *Pipeline) StateName() string {
	return p.State().String()
}

// Committed returns the last committed ledger sequence.
func (p *Pipeline) Committed() uint64 {
	return p.lastCommitted.Load()
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	metrics.PipelineStateSet(s.String(), AllStates)
	p.log.Infow("pipeline state changed", "state", s.String())
}

// Run executes the ingestion loop until ctx is cancelled or a fatal error
// occurs. Transient source faults trigger recovery with capped exponential
// backoff; an invalid cursor or a reorg beyond the finality window is fatal.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(StateStarting)
	defer p.setState(StateStopped)
	defer metrics.ComponentHealthSet(common.ComponentIngestPipeline, false)

	cp, err := p.checkpoint.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	from := p.cfg.StartLedger
	if cp.Initialized() {
		from = cp.LastLedgerSeq + 1
	}
	p.lastCommitted.Store(cp.LastLedgerSeq)
	p.log.Infow("starting ingestion", "fromLedger", from, "checkpointLedger", cp.LastLedgerSeq)

	bo := p.recoveryBackoff()

	for {
		before := p.lastCommitted.Load()
		err := p.runSession(ctx, from)
		switch {
		case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			p.log.Infow("ingestion stopped", "lastLedger", p.lastCommitted.Load())
			return nil
		case isResubscribe(err):
			var re *resubscribeError
			errors.As(err, &re)
			from = re.from
			bo.Reset()
			continue
		case errors.Is(err, source.ErrInvalidCursor):
			metrics.ErrorsInc(common.ComponentIngestPipeline, "fatal")
			return fmt.Errorf("start ledger %d is no longer available from the source: %w", from, err)
		case isBeyondFinality(err):
			metrics.ErrorsInc(common.ComponentIngestPipeline, "fatal")
			return err
		default:
			metrics.ErrorsInc(common.ComponentIngestPipeline, "transient")
			p.setState(StateRecovering)
			metrics.ComponentHealthSet(common.ComponentIngestPipeline, false)

			// A session that made progress was healthy; its failure is a
			// fresh fault, not a continuation of the previous one.
			if p.lastCommitted.Load() > before {
				bo.Reset()
			}

			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("ingestion recovery attempts exhausted: %w", err)
			}
			p.log.Warnw("ingestion session failed, recovering", "error", err, "retryIn", wait)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			from = p.lastCommitted.Load() + 1
			if p.lastCommitted.Load() == 0 {
				from = p.cfg.StartLedger
			}
		}
	}
}

// runSession runs one subscribe/consume cycle. The producer prefetches
// ledger batches into a bounded channel; the consumer applies them. Either
// side failing tears the session down via the errgroup context.
func (p *Pipeline) runSession(ctx context.Context, from uint64) error {
	latest, err := p.client.LatestLedger(ctx)
	if err != nil {
		return fmt.Errorf("failed to query latest ledger: %w", err)
	}
	if latest >= from && latest-from >= p.cfg.CatchupThreshold {
		p.setState(StateCatchingUp)
	} else {
		p.setState(StateStreaming)
	}
	metrics.ComponentHealthSet(common.ComponentIngestPipeline, true)

	sub, err := p.client.Subscribe(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to subscribe from ledger %d: %w", from, err)
	}
	defer sub.Close()

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan *source.LedgerBatch, p.cfg.PrefetchDepth)

	g.Go(func() error {
		defer close(batches)
		for {
			batch, err := sub.Next(gctx)
			if err != nil {
				return err
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		var sinceCheckpoint uint64
		for batch := range batches {
			catchingUp := p.State() == StateCatchingUp
			if catchingUp && batch.Seq >= latest {
				p.setState(StateStreaming)
				catchingUp = false
			}

			sinceCheckpoint++
			deferCheckpoint := catchingUp && sinceCheckpoint < p.cfg.CatchupCheckpointEvery
			if !deferCheckpoint {
				sinceCheckpoint = 0
			}

			if err := p.applyBatch(gctx, batch, deferCheckpoint); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

// applyBatch commits one ledger batch, retrying storage-side write failures
// in place with backoff. The subscription stays open: a busy database is not
// a reason to reconnect to the source.
func (p *Pipeline) applyBatch(ctx context.Context, batch *source.LedgerBatch, deferCheckpoint bool) error {
	bo := p.recoveryBackoff()
	for {
		err := p.processBatch(ctx, batch, deferCheckpoint)
		if err == nil || !retryableWrite(err) {
			return err
		}

		metrics.ErrorsInc(common.ComponentIngestPipeline, "transient")
		wait := bo.NextBackOff()
		p.log.Warnw("ledger batch write failed, retrying",
			"ledgerSeq", batch.Seq, "error", err, "retryIn", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// retryableWrite reports whether a batch write failure can be retried on the
// same batch. Reorg control flow and fatal divergence are not write faults.
func retryableWrite(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !isResubscribe(err) && !isBeyondFinality(err)
}

// processBatch applies one ledger batch in a single transaction. When
// deferCheckpoint is set the checkpoint row is left behind on purpose;
// idempotent appends make replaying those ledgers after a crash safe.
func (p *Pipeline) processBatch(ctx context.Context, batch *source.LedgerBatch, deferCheckpoint bool) error {
	start := time.Now()

	outcome, err := p.reconciler.Evaluate(ctx, batch, p.lastCommitted.Load())
	if err != nil {
		return err
	}

	switch outcome.Action {
	case reorg.ActionDuplicate:
		p.log.Debugw("skipping already committed ledger", "ledgerSeq", batch.Seq)
		return nil
	case reorg.ActionReorg:
		if err := p.retract(ctx, outcome.From); err != nil {
			return err
		}
		metrics.ReorgsHandled.Inc()
		if outcome.From < batch.Seq {
			// The replacement branch starts below this batch; the source
			// must replay it from the divergence point.
			return &resubscribeError{from: outcome.From}
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	applied := map[string]int{}
	var lastIndex uint32
	for i := range batch.Events {
		ev := &batch.Events[i]
		lastIndex = ev.EventIndex

		var inserted bool
		if ev.Kind == source.KindUpdateMapping {
			inserted, err = p.history.AppendTx(tx, ev)
		} else {
			inserted, err = p.tokens.RecordTx(tx, ev)
		}
		if err != nil {
			return fmt.Errorf("failed to apply event at ledger %d index %d: %w", ev.LedgerSeq, ev.EventIndex, err)
		}
		if inserted {
			applied[string(ev.Kind)]++
		}
	}

	if err := p.reconciler.RecordLedgerTx(tx, batch); err != nil {
		return err
	}
	if boundary := reorg.ConfirmedBoundary(batch.Seq, p.reconciler.Window()); boundary > 0 {
		if err := p.reconciler.PruneBelowTx(tx, boundary); err != nil {
			return err
		}
	}
	if !deferCheckpoint {
		if err := p.checkpoint.CommitTx(tx, batch.Seq, lastIndex); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger %d: %w", batch.Seq, err)
	}

	p.lastCommitted.Store(batch.Seq)
	metrics.LastIngestedLedgerSet(batch.Seq)
	metrics.LedgersProcessed.Inc()
	for kind, n := range applied {
		metrics.EventsIngestedInc(kind, n)
	}
	metrics.BatchCommitTimeLog(time.Since(start))

	if len(batch.Events) > 0 {
		p.log.Debugw("committed ledger batch",
			"ledgerSeq", batch.Seq, "events", len(batch.Events), "took", time.Since(start))
	}
	return nil
}

// retract removes all committed data at or above fromLedger and rewinds the
// checkpoint, in one transaction.
func (p *Pipeline) retract(ctx context.Context, fromLedger uint64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin retraction transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	retracted, err := p.history.RetractFromTx(tx, fromLedger)
	if err != nil {
		return err
	}
	if _, err := p.tokens.RetractFromTx(tx, fromLedger); err != nil {
		return err
	}
	if err := p.reconciler.DeleteFromTx(tx, fromLedger); err != nil {
		return err
	}
	if err := p.checkpoint.RewindTx(tx, fromLedger-1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit retraction from ledger %d: %w", fromLedger, err)
	}

	p.lastCommitted.Store(fromLedger - 1)
	metrics.RetractedRecords.Add(float64(retracted))
	metrics.LastIngestedLedgerSet(fromLedger - 1)
	p.log.Warnw("retracted committed ledgers", "fromLedger", fromLedger, "versionRecords", retracted)
	return nil
}

func (p *Pipeline) recoveryBackoff() backoff.BackOff {
	rc := p.cfg.RecoveryBackoff
	if rc == nil {
		rc = &config.RetryConfig{}
		rc.ApplyDefaults()
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = rc.InitialBackoff.Duration
	eb.MaxInterval = rc.MaxBackoff.Duration
	eb.Multiplier = rc.BackoffMultiplier
	// Recovery never gives up on its own; only fatal errors stop ingestion.
	eb.MaxElapsedTime = 0
	return eb
}

func isResubscribe(err error) bool {
	var re *resubscribeError
	return errors.As(err, &re)
}

func isBeyondFinality(err error) bool {
	var bf *reorg.BeyondFinalityError
	return errors.As(err, &bf)
}
