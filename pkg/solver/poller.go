package solver

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/atomic"

	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/metrics"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// discovery is one batch of events from a single chain
type discovery struct {
	chainID int
	created []*models.IntentCreatedEvent
	won     []*models.IntentWonEvent
}

// chainPoller scans one origin chain for new intents and finalized auctions.
// It is the only writer of its lastProcessedBlock.
type chainPoller struct {
	client             ledger.Client
	interval           time.Duration
	maxRange           uint64
	lastProcessedBlock *atomic.Uint64
	out                chan<- discovery
	logger             logger.Logger
}

func newChainPoller(client ledger.Client, interval time.Duration, maxRange uint64, out chan<- discovery, logger logger.Logger) *chainPoller {
	if maxRange == 0 {
		maxRange = 100
	}
	return &chainPoller{
		client:             client,
		interval:           interval,
		maxRange:           maxRange,
		lastProcessedBlock: atomic.NewUint64(0),
		out:                out,
		logger:             logger,
	}
}

// init positions the poller. A configured start block wins, otherwise discovery
// starts lookback blocks behind the current head.
func (p *chainPoller) init(ctx context.Context, startBlock, lookback uint64) error {
	if startBlock > 0 {
		p.lastProcessedBlock.Store(startBlock - 1)
		return nil
	}
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if head > lookback {
		p.lastProcessedBlock.Store(head - lookback)
	}
	return nil
}

func (p *chainPoller) run(ctx context.Context) error {
	chainID := p.client.ChainID()
	p.logger.InfoWithChain(chainID, "Starting intent discovery from block %d", p.lastProcessedBlock.Load()+1)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_, errorType := classifyError(err)
			metrics.Errors.WithLabelValues(strconv.Itoa(chainID), errorType).Inc()
			p.logger.ErrorWithChain(chainID, "Discovery failed at block %d: %v", p.lastProcessedBlock.Load()+1, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll scans the next block range. The cursor only moves once both queries succeed
// and the batch was handed to the engine.
func (p *chainPoller) poll(ctx context.Context) error {
	chainID := p.client.ChainID()
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	last := p.lastProcessedBlock.Load()
	metrics.PollLag.WithLabelValues(strconv.Itoa(chainID)).Set(float64(head - min(head, last)))
	if head <= last {
		return nil
	}

	from := last + 1
	to := min(head, last+p.maxRange)

	created, err := p.client.IntentCreatedEvents(ctx, from, to)
	if err != nil {
		return err
	}
	won, err := p.client.IntentWonEvents(ctx, from, to)
	if err != nil {
		return err
	}

	if len(created) > 0 || len(won) > 0 {
		p.logger.DebugWithChain(chainID, "Blocks %d-%d: %d new intents, %d finalized auctions", from, to, len(created), len(won))
		select {
		case p.out <- discovery{chainID: chainID, created: created, won: won}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.lastProcessedBlock.Store(to)
	metrics.LastProcessedBlock.WithLabelValues(strconv.Itoa(chainID)).Set(float64(to))
	return nil
}
