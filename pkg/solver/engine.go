package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/speedrun-intents/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/metrics"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// ErrNotRunning is returned by queries while the engine loop is not running
var ErrNotRunning = errors.New("solver engine is not running")

// Settler triggers settlement of a delivered intent.
// *relayerclient.Client satisfies it.
type Settler interface {
	Settle(ctx context.Context, req models.SettleRequest) (*models.SettleResponse, error)
	SettleWithProof(ctx context.Context, req models.SettleRequest) (*models.SettleResponse, error)
}

// ProofPolicy tells which destination chains settle through the proof gate
type ProofPolicy interface {
	RequiresProof(destinationChainID int) bool
}

// ProofSource produces the delivery proof handed to the relayer
type ProofSource interface {
	ProofFor(ctx context.Context, intent *models.Intent, destinationChainID int) (*models.ProofData, error)
}

// Phase is the step a tracked intent is in
type Phase string

const (
	PhaseEvaluating     Phase = "evaluating"
	PhaseBidding        Phase = "bidding"
	PhaseFinalizing     Phase = "finalizing"
	PhaseDelivering     Phase = "delivering"
	PhaseSettling       Phase = "settling"
	PhaseAwaitingPayout Phase = "awaiting_payout"
)

// Task outcomes
const (
	outcomeCompleted = "completed"
	outcomeTimeout   = "timeout"
	outcomeLost      = "lost"
	outcomeAbandoned = "abandoned"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
	outcomeSkipped   = "skipped"
)

// BidState is the engine's view of one tracked intent
type BidState struct {
	Intent               *models.Intent `json:"intent"`
	DestinationChainID   int            `json:"destinationChainId"`
	Phase                Phase          `json:"phase"`
	CurrentBid           *big.Int       `json:"currentBid"`
	IsWinning            bool           `json:"isWinning"`
	ProfitableBidCeiling *big.Int       `json:"profitableBidCeiling"`
	DiscoveredAt         time.Time      `json:"discoveredAt"`
}

// Options wire an Engine
type Options struct {
	Config config.SolverConfig
	// Clients holds one ledger client per chain, all signing as the solver
	Clients   map[int]ledger.Client
	Breakers  map[int]*circuitbreaker.CircuitBreaker
	Manifests ManifestSource
	Settler   Settler
	Proofs    ProofSource
	Policy    ProofPolicy
	Fallback  FallbackPolicy
	// StartBlocks overrides the lookback start per origin chain
	StartBlocks map[int]uint64
	Clock       ledger.Clock
	Logger      logger.Logger
}

// Engine discovers intents, bids on the profitable ones and carries the won ones
// through deposit, delivery and settlement
type Engine struct {
	cfg         config.SolverConfig
	clients     map[int]ledger.Client
	pollers     map[int]*chainPoller
	breakers    map[int]*circuitbreaker.CircuitBreaker
	manifests   ManifestSource
	settler     Settler
	proofs      ProofSource
	policy      ProofPolicy
	fallback    FallbackPolicy
	startBlocks map[int]uint64
	clock       ledger.Clock
	logger      logger.Logger

	// spendLocks pair an approval with the transaction spending it, per chain
	spendLocks map[int]*sync.Mutex

	started  *atomic.Bool
	paused   *atomic.Bool
	loopDone chan struct{}

	discoveries chan discovery
	updates     chan taskUpdate
	results     chan taskResult
	requests    chan func(map[models.IntentKey]*trackedIntent)
}

type trackedIntent struct {
	state  BidState
	cancel context.CancelFunc
	ended  chan struct{}
}

// signalEnd wakes the bidding loop of the intent; extra signals are dropped
func (t *trackedIntent) signalEnd() {
	select {
	case t.ended <- struct{}{}:
	default:
	}
}

type taskUpdate struct {
	key   models.IntentKey
	state BidState
}

type taskResult struct {
	key         models.IntentKey
	outcome     string
	err         error
	intent      *models.Intent
	destination int
	// resumable results are picked up again after a backoff
	resumable bool
}

// pendingResume is a won intent waiting for its next attempt
type pendingResume struct {
	intent      *models.Intent
	destination int
	attempts    int
	at          time.Time
}

// NewEngine validates the routes and builds an engine
func NewEngine(opts Options) (*Engine, error) {
	if len(opts.Config.RoutePairs) == 0 {
		return nil, errors.New("at least one route pair is required")
	}
	for origin, destination := range opts.Config.RoutePairs {
		if _, ok := opts.Clients[origin]; !ok {
			return nil, fmt.Errorf("no ledger client for origin chain %d", origin)
		}
		if _, ok := opts.Clients[destination]; !ok {
			return nil, fmt.Errorf("no ledger client for destination chain %d", destination)
		}
	}
	if opts.Config.BidIncrement == nil || opts.Config.BidIncrement.Sign() <= 0 {
		return nil, errors.New("bid increment must be positive")
	}
	if opts.Config.PollingInterval <= 0 || opts.Config.BidInterval <= 0 || opts.Config.CompletionPollInterval <= 0 {
		return nil, errors.New("polling, bid and completion intervals must be positive")
	}
	if opts.Clock == nil {
		opts.Clock = ledger.SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = &logger.EmptyLogger{}
	}
	if opts.Fallback == nil {
		opts.Fallback = FreshAddressFallback{}
	}
	if opts.Breakers == nil {
		opts.Breakers = make(map[int]*circuitbreaker.CircuitBreaker)
	}

	e := &Engine{
		cfg:         opts.Config,
		clients:     opts.Clients,
		pollers:     make(map[int]*chainPoller),
		breakers:    opts.Breakers,
		manifests:   opts.Manifests,
		settler:     opts.Settler,
		proofs:      opts.Proofs,
		policy:      opts.Policy,
		fallback:    opts.Fallback,
		startBlocks: opts.StartBlocks,
		clock:       opts.Clock,
		logger:      opts.Logger,
		started:     atomic.NewBool(false),
		paused:      atomic.NewBool(false),
		loopDone:    make(chan struct{}),
		discoveries: make(chan discovery),
		updates:     make(chan taskUpdate),
		results:     make(chan taskResult),
		requests:    make(chan func(map[models.IntentKey]*trackedIntent)),
		spendLocks:  make(map[int]*sync.Mutex),
	}
	for chainID := range opts.Clients {
		e.spendLocks[chainID] = &sync.Mutex{}
	}
	for origin := range opts.Config.RoutePairs {
		e.pollers[origin] = newChainPoller(opts.Clients[origin], opts.Config.PollingInterval, opts.Config.MaxBlockRange, e.discoveries, opts.Logger)
	}
	return e, nil
}

// Run discovers and processes intents until ctx is cancelled. Cancelling ctx
// cancels every in-flight intent task. An engine runs once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("solver engine already started")
	}

	for chainID, p := range e.pollers {
		if err := p.init(ctx, e.startBlocks[chainID], e.cfg.StartBlockLookback); err != nil {
			close(e.loopDone)
			return fmt.Errorf("failed to read head of chain %d: %w", chainID, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range e.pollers {
		p := p
		g.Go(func() error { return p.run(gctx) })
	}
	g.Go(func() error {
		defer close(e.loopDone)
		return e.loop(gctx)
	})
	return g.Wait()
}

// loop is the only owner of the active map
func (e *Engine) loop(ctx context.Context) error {
	active := make(map[models.IntentKey]*trackedIntent)
	pending := make(map[models.IntentKey]*pendingResume)
	running := 0

	resumeTicker := time.NewTicker(e.cfg.PollingInterval)
	defer resumeTicker.Stop()

	defer func() {
		for _, t := range active {
			t.cancel()
		}
		// drain until every task has reported
		for running > 0 {
			select {
			case <-e.results:
				running--
			case <-e.updates:
			}
		}
		metrics.ActiveIntents.Set(0)
		e.logger.Info("Solver engine stopped")
	}()

	e.logger.Info("Solver engine started on %d routes", len(e.cfg.RoutePairs))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-e.discoveries:
			for _, ev := range d.created {
				if e.track(ctx, active, d.chainID, ev) {
					running++
				}
			}
			for _, ev := range d.won {
				if t, ok := active[models.KeyOf(d.chainID, ev.IntentID)]; ok {
					t.signalEnd()
					continue
				}
				if e.adoptWon(ctx, active, d.chainID, ev) {
					running++
				}
			}
		case u := <-e.updates:
			if t, ok := active[u.key]; ok {
				t.state = u.state
			}
		case r := <-e.results:
			running--
			if t, ok := active[r.key]; ok {
				t.cancel()
				delete(active, r.key)
			}
			e.logResult(r)
			e.schedule(pending, r)
		case <-resumeTicker.C:
			now := time.Now()
			for key, p := range pending {
				if _, ok := active[key]; ok || now.Before(p.at) {
					continue
				}
				if e.start(ctx, active, key, p.intent, p.destination, true) {
					running++
				}
			}
		case req := <-e.requests:
			req(active)
		}
		metrics.ActiveIntents.Set(float64(len(active)))
	}
}

// track starts a task for a newly discovered intent, reporting whether one was started.
// An intent whose auction already closed is only picked up when we won it.
func (e *Engine) track(ctx context.Context, active map[models.IntentKey]*trackedIntent, chainID int, ev *models.IntentCreatedEvent) bool {
	key := models.KeyOf(chainID, ev.IntentID)
	if _, ok := active[key]; ok {
		return false
	}
	destination, ok := e.cfg.RoutePairs[chainID]
	if !ok {
		return false
	}
	metrics.IntentsDiscovered.WithLabelValues(strconv.Itoa(chainID)).Inc()

	intent := ev.Intent()
	intent.OriginChainID = chainID
	if !intent.AuctionOpen(e.clock.Now()) {
		e.logger.DebugWithChain(chainID, "Auction of intent %s already ended, checking the ledger", ev.IntentID)
		return e.start(ctx, active, key, intent, destination, true)
	}
	if e.paused.Load() {
		e.logger.DebugWithChain(chainID, "Solver paused, skipping intent %s", ev.IntentID)
		return false
	}

	e.logger.InfoWithChain(chainID, "Discovered intent %s: %s source + %s reward for %s on chain %d",
		ev.IntentID, ev.SourceAmount, ev.Reward, ev.ExpectedDestinationAmount, destination)
	return e.start(ctx, active, key, intent, destination, false)
}

// adoptWon picks up an auction we won that no task is tracking
func (e *Engine) adoptWon(ctx context.Context, active map[models.IntentKey]*trackedIntent, chainID int, ev *models.IntentWonEvent) bool {
	destination, ok := e.cfg.RoutePairs[chainID]
	if !ok || ev.Winner != e.clients[chainID].Address() {
		return false
	}
	intent := &models.Intent{
		ID:            ev.IntentID,
		OriginChainID: chainID,
		State:         models.StateFinalized,
		WinningSolver: ev.Winner,
		WinningBid:    ev.Amount,
	}
	return e.start(ctx, active, models.KeyOf(chainID, ev.IntentID), intent, destination, true)
}

// start runs a task for the intent. A resumed task re-reads the ledger and skips
// the phases already done instead of evaluating and bidding.
func (e *Engine) start(ctx context.Context, active map[models.IntentKey]*trackedIntent, key models.IntentKey, intent *models.Intent, destination int, resumed bool) bool {
	if _, ok := active[key]; ok {
		return false
	}
	phase := PhaseEvaluating
	if resumed {
		phase = PhaseFinalizing
	}

	taskCtx, cancel := context.WithCancel(ctx)
	tracked := &trackedIntent{
		state: BidState{
			Intent:             intent,
			DestinationChainID: destination,
			Phase:              phase,
			CurrentBid:         new(big.Int),
			DiscoveredAt:       time.Now(),
		},
		cancel: cancel,
		ended:  make(chan struct{}, 1),
	}
	active[key] = tracked

	task := &intentTask{
		engine:      e,
		key:         key,
		intent:      intent,
		origin:      e.clients[key.ChainID],
		destination: destination,
		ended:       tracked.ended,
		state:       tracked.state,
		resumed:     resumed,
		logger:      e.logger,
	}

	go func() {
		outcome, err := task.run(taskCtx)
		// the loop keeps receiving until every started task reported, even while stopping
		e.results <- taskResult{
			key:         key,
			outcome:     outcome,
			err:         err,
			intent:      task.intent,
			destination: destination,
			resumable:   task.resumable(outcome, err),
		}
	}()
	return true
}

// schedule queues a resumable result for another attempt and forgets the rest
func (e *Engine) schedule(pending map[models.IntentKey]*pendingResume, r taskResult) {
	if !r.resumable {
		delete(pending, r.key)
		return
	}
	p, ok := pending[r.key]
	if !ok {
		p = &pendingResume{}
		pending[r.key] = p
	}
	p.intent = r.intent
	p.destination = r.destination
	p.attempts++
	p.at = time.Now().Add(e.backoff(p.attempts))
	e.logger.NoticeWithChain(r.key.ChainID, "Intent %s will be resumed in %v (attempt %d)", r.key.ID, e.backoff(p.attempts), p.attempts+1)
}

func (e *Engine) logResult(r taskResult) {
	switch {
	case r.outcome == outcomeCompleted:
		e.logger.InfoWithChain(r.key.ChainID, "Intent %s completed", r.key.ID)
	case r.err != nil && !errors.Is(r.err, errAbandoned) && !errors.Is(r.err, context.Canceled):
		e.logger.ErrorWithChain(r.key.ChainID, "Intent %s ended as %s: %v", r.key.ID, r.outcome, r.err)
	default:
		e.logger.DebugWithChain(r.key.ChainID, "Intent %s ended as %s", r.key.ID, r.outcome)
	}
}

// publish hands a task's state to the loop
func (e *Engine) publish(ctx context.Context, key models.IntentKey, state BidState) {
	select {
	case e.updates <- taskUpdate{key: key, state: state}:
	case <-ctx.Done():
	}
}

// query runs fn on the loop goroutine
func (e *Engine) query(ctx context.Context, fn func(map[models.IntentKey]*trackedIntent)) error {
	if !e.started.Load() {
		return ErrNotRunning
	}
	done := make(chan struct{})
	select {
	case e.requests <- func(active map[models.IntentKey]*trackedIntent) {
		fn(active)
		close(done)
	}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.loopDone:
		return ErrNotRunning
	}
	<-done
	return nil
}

// Pause stops discovery of new intents and bid submission. Won intents keep
// going through deposit, delivery and settlement.
func (e *Engine) Pause() {
	if !e.paused.Swap(true) {
		e.logger.Notice("Solver paused")
	}
}

// Resume undoes Pause
func (e *Engine) Resume() {
	if e.paused.Swap(false) {
		e.logger.Notice("Solver resumed")
	}
}

// IsPaused reports whether bidding is paused
func (e *Engine) IsPaused() bool {
	return e.paused.Load()
}

// IsRunning reports whether the engine loop is up
func (e *Engine) IsRunning() bool {
	if !e.started.Load() {
		return false
	}
	select {
	case <-e.loopDone:
		return false
	default:
		return true
	}
}

// ActiveIntents returns a snapshot of every tracked intent, ordered by chain and id
func (e *Engine) ActiveIntents(ctx context.Context) ([]BidState, error) {
	var out []BidState
	err := e.query(ctx, func(active map[models.IntentKey]*trackedIntent) {
		out = make([]BidState, 0, len(active))
		for _, t := range active {
			out = append(out, t.state)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Intent.OriginChainID != out[j].Intent.OriginChainID {
			return out[i].Intent.OriginChainID < out[j].Intent.OriginChainID
		}
		return out[i].Intent.ID.Cmp(out[j].Intent.ID) < 0
	})
	return out, nil
}

func (e *Engine) tracked(ctx context.Context, key models.IntentKey) (*BidState, error) {
	var state *BidState
	err := e.query(ctx, func(active map[models.IntentKey]*trackedIntent) {
		if t, ok := active[key]; ok {
			s := t.state
			state = &s
		}
	})
	return state, err
}

// Breakers returns the circuit breaker of every chain that has one
func (e *Engine) Breakers() map[int]*circuitbreaker.CircuitBreaker {
	return e.breakers
}

// recordFailure classifies a failed call on a chain and feeds the breaker
// Returns (shouldRetry, errorType)
func (e *Engine) recordFailure(chainID int, err error) (bool, string) {
	shouldRetry, errorType := classifyError(err)
	metrics.Errors.WithLabelValues(strconv.Itoa(chainID), errorType).Inc()

	// already processed is not a failure of the chain
	if errorType == errAlreadyProcessed {
		return shouldRetry, errorType
	}
	if cb, ok := e.breakers[chainID]; ok {
		wasOpen := cb.IsOpen()
		if cb.RecordFailure() && !wasOpen {
			metrics.CircuitBreakerTrips.WithLabelValues(strconv.Itoa(chainID)).Inc()
		}
	}
	return shouldRetry, errorType
}

func (e *Engine) recordSuccess(chainID int) {
	if cb, ok := e.breakers[chainID]; ok {
		cb.RecordSuccess()
	}
}

const maxStepAttempts = 3

// retry runs a step until it succeeds, fails permanently or exhausts its attempts
func (e *Engine) retry(ctx context.Context, chainID int, step string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			e.recordSuccess(chainID)
			return nil
		}
		shouldRetry, errorType := e.recordFailure(chainID, err)
		if !shouldRetry || attempt >= maxStepAttempts {
			return err
		}
		backoff := e.backoff(attempt)
		e.logger.ErrorWithChain(chainID, "%s failed (%s, attempt %d), retrying in %v: %v", step, errorType, attempt, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// backoff doubles the bid interval per attempt, capped at two minutes
func (e *Engine) backoff(attempt int) time.Duration {
	backoff := e.cfg.BidInterval << (attempt - 1)
	if maxBackoff := 2 * time.Minute; backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	return backoff
}
