package solver

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/metrics"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayer"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayerclient"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	user      = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	solverID  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	rivalID   = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	relayerID = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob       = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

func testLogger() logger.Logger {
	if *verbose {
		return logger.NewStdLogger(false, logger.DebugLevel)
	}
	return &logger.EmptyLogger{}
}

func testConfig() config.SolverConfig {
	return config.SolverConfig{
		MinProfitMargin:        0.02,
		BalanceBuffer:          0.1,
		MaxBidAmount:           big.NewInt(1000),
		BidIncrement:           big.NewInt(1),
		PollingInterval:        10 * time.Millisecond,
		BidInterval:            10 * time.Millisecond,
		MaxBlockRange:          100,
		StartBlockLookback:     100,
		SettleDelay:            10 * time.Millisecond,
		CompletionTimeout:      2 * time.Second,
		CompletionPollInterval: 10 * time.Millisecond,
		AuctionGrace:           30 * time.Second,
		RoutePairs:             map[int]int{chains.HorizenTestnet: chains.BaseSepolia},
	}
}

// harness is an origin and a destination ledger sharing one clock, with a relayer in front
type harness struct {
	clock       *ledger.ManualClock
	origin      *ledger.Chain
	destination *ledger.Chain
	srcToken    common.Address
	dstToken    common.Address
	store       *recipients.MemoryStore
	relayer     *relayerclient.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	h := &harness{
		clock:       clock,
		origin:      ledger.NewChain(ledger.Options{ChainID: chains.HorizenTestnet, Owner: owner, Clock: clock}),
		destination: ledger.NewChain(ledger.Options{ChainID: chains.BaseSepolia, Owner: owner, Clock: clock}),
		store:       recipients.NewMemoryStore(),
	}
	h.srcToken = h.origin.DeployToken("USDC")
	h.dstToken = h.destination.DeployToken("USDC")
	for _, acct := range []common.Address{user, solverID, rivalID} {
		require.NoError(t, h.origin.Mint(h.srcToken, acct, big.NewInt(1000)))
	}
	require.NoError(t, h.destination.Mint(h.dstToken, solverID, big.NewInt(1000)))
	_, err := h.origin.As(owner).AddRelayer(ctx, relayerID)
	require.NoError(t, err)

	h.startRelayer(t, relayer.Options{})
	return h
}

func (h *harness) startRelayer(t *testing.T, opts relayer.Options) {
	t.Helper()
	opts.Ledgers = map[int]ledger.Client{
		chains.HorizenTestnet: h.origin.As(relayerID),
		chains.BaseSepolia:    h.destination.As(relayerID),
	}
	opts.Store = h.store
	opts.Logger = testLogger()
	srv := relayer.NewServer(relayer.NewService(opts), "0", 0, testLogger())
	srv.SetReady(true)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	h.relayer = relayerclient.New(ts.URL, testLogger())
}

func (h *harness) clients(as common.Address) map[int]ledger.Client {
	return map[int]ledger.Client{
		chains.HorizenTestnet: h.origin.As(as),
		chains.BaseSepolia:    h.destination.As(as),
	}
}

func (h *harness) engine(t *testing.T, as common.Address, mutate func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Config:    testConfig(),
		Clients:   h.clients(as),
		Manifests: h.relayer,
		Settler:   h.relayer,
		Clock:     h.clock,
		Logger:    testLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e
}

// run starts the engine and stops it when the test ends
func run(t *testing.T, e *Engine) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	require.Eventually(t, e.IsRunning, waitFor, tick)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-errCh:
				assert.NoError(t, err)
			case <-time.After(waitFor):
				t.Error("engine did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

// createIntent opens an intent for 100 source + 5 reward, expecting the given destination amount
func (h *harness) createIntent(t *testing.T, expected int64) *big.Int {
	t.Helper()
	ctx := context.Background()
	u := h.origin.As(user)
	_, err := u.ApproveToken(ctx, h.srcToken, h.origin.ContractAddress(), big.NewInt(105))
	require.NoError(t, err)
	id, _, err := u.CreateIntent(ctx, ledger.CreateIntentParams{
		SourceToken:               h.srcToken,
		DestinationToken:          h.dstToken,
		SourceAmount:              big.NewInt(100),
		ExpectedDestinationAmount: big.NewInt(expected),
		Reward:                    big.NewInt(5),
		AuctionDuration:           time.Minute,
	})
	require.NoError(t, err)
	return id
}

func (h *harness) highestBid(t *testing.T, id *big.Int) *models.Bid {
	t.Helper()
	bid, err := h.origin.As(user).GetHighestBid(context.Background(), id)
	require.NoError(t, err)
	return bid
}

func (h *harness) state(t *testing.T, id *big.Int) models.IntentState {
	t.Helper()
	intent, err := h.origin.As(user).GetIntent(context.Background(), id)
	require.NoError(t, err)
	return intent.State
}

func (h *harness) completed(t *testing.T, id *big.Int) func() bool {
	return func() bool { return h.state(t, id) == models.StateCompleted }
}

func idle(t *testing.T, e *Engine) func() bool {
	return func() bool {
		active, err := e.ActiveIntents(context.Background())
		require.NoError(t, err)
		return len(active) == 0
	}
}

func TestEngineFullLifecycle(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, solverID, nil)
	run(t, e)

	id := h.createIntent(t, 95)
	require.NoError(t, h.relayer.StoreRecipients(context.Background(), &models.RecipientManifest{
		IntentID:   id.String(),
		ChainID:    chains.BaseSepolia,
		Recipients: []common.Address{alice, bob},
		Amounts:    amounts(60, 35),
	}))

	require.Eventually(t, func() bool {
		bid := h.highestBid(t, id)
		return bid.HasBid() && bid.Solver == solverID
	}, waitFor, tick)
	assert.Equal(t, int64(95), h.highestBid(t, id).Amount.Int64())

	h.clock.Advance(61 * time.Second)
	require.Eventually(t, h.completed(t, id), waitFor, tick)
	require.Eventually(t, idle(t, e), waitFor, tick)

	assert.Equal(t, int64(60), h.destination.BalanceOf(h.dstToken, alice).Int64())
	assert.Equal(t, int64(35), h.destination.BalanceOf(h.dstToken, bob).Int64())
	assert.Equal(t, int64(905), h.destination.BalanceOf(h.dstToken, solverID).Int64())
	// paid 95 as bid, received 100 + 5 + 95
	assert.Equal(t, int64(1105), h.origin.BalanceOf(h.srcToken, solverID).Int64())
	assert.Equal(t, int64(0), h.origin.EscrowBalance(h.srcToken).Int64())

	// gas is observed by the chain client, never by the engine
	assert.Zero(t, promtestutil.CollectAndCount(metrics.GasUsed))
}

type fixedFallback struct {
	to common.Address
}

func (f fixedFallback) Recipients(intent *models.Intent) ([]common.Address, []*big.Int, error) {
	return []common.Address{f.to}, []*big.Int{new(big.Int).Set(intent.ExpectedDestinationAmount)}, nil
}

func TestEngineFallbackWithoutManifest(t *testing.T) {
	h := newHarness(t)
	sink := common.HexToAddress("0x3333333333333333333333333333333333333333")
	e := h.engine(t, solverID, func(o *Options) { o.Fallback = fixedFallback{to: sink} })
	run(t, e)

	id := h.createIntent(t, 95)
	require.Eventually(t, func() bool { return h.highestBid(t, id).HasBid() }, waitFor, tick)
	h.clock.Advance(61 * time.Second)

	require.Eventually(t, h.completed(t, id), waitFor, tick)
	assert.Equal(t, int64(95), h.destination.BalanceOf(h.dstToken, sink).Int64())
}

func TestEngineSkipsUnprofitableIntent(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, solverID, nil)
	run(t, e)

	// the ceiling for 100 + 5 at a 2% margin is 103
	id := h.createIntent(t, 104)

	assert.Never(t, func() bool { return h.highestBid(t, id).HasBid() }, 150*time.Millisecond, tick)
	assert.Eventually(t, idle(t, e), waitFor, tick)
}

func TestEngineCompetingSolvers(t *testing.T) {
	h := newHarness(t)
	ours := h.engine(t, solverID, nil)
	rival := h.engine(t, rivalID, func(o *Options) {
		o.Config.MinProfitMargin = 0.05 // ceiling 100
		o.Settler = nil
	})
	run(t, ours)
	run(t, rival)

	id := h.createIntent(t, 95)

	// the rival gives up once outbidding would pass its ceiling of 100
	require.Eventually(t, func() bool {
		bid := h.highestBid(t, id)
		return bid.HasBid() && bid.Solver == solverID && bid.Amount.Int64() >= 100
	}, waitFor, tick)
	require.Eventually(t, idle(t, rival), waitFor, tick)
	winning := h.highestBid(t, id).Amount.Int64()
	assert.GreaterOrEqual(t, winning, int64(100))
	assert.LessOrEqual(t, winning, int64(103))

	h.clock.Advance(61 * time.Second)
	require.Eventually(t, h.completed(t, id), waitFor, tick)

	assert.Equal(t, int64(1000+105), h.origin.BalanceOf(h.srcToken, solverID).Int64())
	assert.Equal(t, int64(1000), h.origin.BalanceOf(h.srcToken, rivalID).Int64())
}

func TestEngineLosesAuction(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, solverID, func(o *Options) { o.Config.MaxBidAmount = big.NewInt(96) })
	run(t, e)

	id := h.createIntent(t, 95)
	require.Eventually(t, func() bool { return h.highestBid(t, id).HasBid() }, waitFor, tick)

	// a bid above our ceiling ends our interest
	_, err := h.origin.As(rivalID).PlaceBid(context.Background(), id, big.NewInt(100))
	require.NoError(t, err)
	require.Eventually(t, idle(t, e), waitFor, tick)

	h.clock.Advance(61 * time.Second)
	_, err = h.origin.As(rivalID).FinalizeAuction(context.Background(), id)
	require.NoError(t, err)

	assert.Never(t, func() bool {
		solved, err := h.destination.As(user).IsIntentSolvedOnChain2(context.Background(), id)
		require.NoError(t, err)
		return solved
	}, 100*time.Millisecond, tick)
	assert.Equal(t, int64(1000), h.destination.BalanceOf(h.dstToken, solverID).Int64())
}

func TestEnginePauseResume(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, solverID, nil)
	run(t, e)

	e.Pause()
	assert.True(t, e.IsPaused())
	skipped := h.createIntent(t, 95)
	assert.Never(t, func() bool { return h.highestBid(t, skipped).HasBid() }, 100*time.Millisecond, tick)

	e.Resume()
	assert.False(t, e.IsPaused())
	picked := h.createIntent(t, 95)
	assert.Eventually(t, func() bool { return h.highestBid(t, picked).HasBid() }, waitFor, tick)
	assert.False(t, h.highestBid(t, skipped).HasBid())
}

func TestEngineCircuitBreakerSuppressesBids(t *testing.T) {
	h := newHarness(t)
	cb := circuitbreaker.NewCircuitBreaker(chains.HorizenTestnet, true, 1, time.Minute, time.Hour, testLogger())
	require.True(t, cb.RecordFailure())

	e := h.engine(t, solverID, func(o *Options) {
		o.Breakers = map[int]*circuitbreaker.CircuitBreaker{chains.HorizenTestnet: cb}
	})
	run(t, e)

	id := h.createIntent(t, 95)
	assert.Never(t, func() bool { return h.highestBid(t, id).HasBid() }, 100*time.Millisecond, tick)

	require.NoError(t, e.ResetCircuit(chains.HorizenTestnet))
	assert.Eventually(t, func() bool { return h.highestBid(t, id).HasBid() }, waitFor, tick)
	assert.Error(t, e.ResetCircuit(chains.BaseSepolia))
}

func TestEngineQueries(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, solverID, nil)

	_, err := e.ActiveIntents(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)

	run(t, e)
	id := h.createIntent(t, 95)

	require.Eventually(t, func() bool {
		active, err := e.ActiveIntents(context.Background())
		require.NoError(t, err)
		return len(active) == 1 && active[0].IsWinning
	}, waitFor, tick)

	active, err := e.ActiveIntents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseBidding, active[0].Phase)
	assert.Equal(t, chains.BaseSepolia, active[0].DestinationChainID)
	assert.Equal(t, int64(103), active[0].ProfitableBidCeiling.Int64())
	assert.Equal(t, int64(95), active[0].CurrentBid.Int64())

	status, err := e.IntentStatus(context.Background(), chains.HorizenTestnet, id)
	require.NoError(t, err)
	assert.True(t, status.AreWeWinning)
	assert.True(t, status.IsBeingProcessed)
	assert.False(t, status.HasEnded)
	assert.Equal(t, int64(60), status.TimeLeftSeconds)

	_, err = e.IntentStatus(context.Background(), chains.Ethereum, id)
	assert.Error(t, err)

	st, err := e.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.ActiveIntents)
	require.Len(t, st.Chains, 2)
	origin := st.Chains[1]
	assert.Equal(t, chains.HorizenTestnet, origin.ChainID)
	assert.Equal(t, chains.BaseSepolia, origin.DestinationChainID)
	assert.NotZero(t, origin.LastProcessedBlock)
	// bids are only pulled on deposit
	assert.Equal(t, "1000", origin.Balances[h.srcToken.Hex()])
}

func TestEngineFinalizeOnRequest(t *testing.T) {
	h := newHarness(t)
	// the bid loop only wakes up on request
	e := h.engine(t, solverID, func(o *Options) { o.Config.BidInterval = time.Hour })
	run(t, e)

	id := h.createIntent(t, 95)
	require.Eventually(t, func() bool { return h.highestBid(t, id).HasBid() }, waitFor, tick)

	// an open auction keeps its task bidding
	_, err := e.FinalizeAuction(context.Background(), chains.HorizenTestnet, id)
	assert.ErrorIs(t, err, ledger.ErrAuctionActive)
	active, err := e.ActiveIntents(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, PhaseBidding, active[0].Phase)

	h.clock.Advance(61 * time.Second)
	assert.Never(t, func() bool { return h.state(t, id) != models.StateCreated }, 50*time.Millisecond, tick)

	receipt, err := e.FinalizeAuction(context.Background(), chains.HorizenTestnet, id)
	require.NoError(t, err)
	assert.Nil(t, receipt)
	require.Eventually(t, h.completed(t, id), waitFor, tick)

	// an untracked auction is finalized directly
	e.Pause()
	other := h.createIntent(t, 95)
	_, err = h.origin.As(rivalID).PlaceBid(context.Background(), other, big.NewInt(95))
	require.NoError(t, err)
	h.clock.Advance(61 * time.Second)

	receipt, err = e.FinalizeAuction(context.Background(), chains.HorizenTestnet, other)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, models.StateFinalized, h.state(t, other))
}

func TestEngineStopCancelsTasks(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, solverID, nil)
	stop := run(t, e)

	h.createIntent(t, 95)
	require.Eventually(t, func() bool {
		active, err := e.ActiveIntents(context.Background())
		require.NoError(t, err)
		return len(active) == 1
	}, waitFor, tick)

	stop()
	assert.False(t, e.IsRunning())
	_, err := e.ActiveIntents(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Error(t, e.Run(context.Background()))
}

type verifier struct {
	mu        sync.Mutex
	submitted []models.ProofData
}

func (v *verifier) Enabled() bool { return true }

func (v *verifier) SubmitProof(_ context.Context, _ string, proof models.ProofData) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitted = append(v.submitted, proof)
	return "job-1", true, nil
}

func (v *verifier) JobStatus(_ context.Context, jobID string) (*models.ProofJob, error) {
	return &models.ProofJob{JobID: jobID, Status: models.ProofFinalized}, nil
}

func (v *verifier) WaitForFinalization(_ context.Context, jobID string, _ time.Duration, _ int) (*models.ProofJob, int, error) {
	return &models.ProofJob{JobID: jobID, Status: models.ProofFinalized, TxHash: "0xproof"}, 1, nil
}

type staticProof struct{}

func (staticProof) ProofFor(_ context.Context, intent *models.Intent, _ int) (*models.ProofData, error) {
	return &models.ProofData{Proof: "0x01", PublicSignals: []string{intent.ID.String()}}, nil
}

func TestEngineSettlesWithProof(t *testing.T) {
	h := newHarness(t)
	policy := config.ProofConfig{RequiredChains: []int{chains.BaseSepolia}}
	v := &verifier{}
	h.startRelayer(t, relayer.Options{Proofs: v, Policy: policy})

	e := h.engine(t, solverID, func(o *Options) {
		o.Proofs = staticProof{}
		o.Policy = policy
	})
	run(t, e)

	id := h.createIntent(t, 95)
	require.Eventually(t, func() bool { return h.highestBid(t, id).HasBid() }, waitFor, tick)
	h.clock.Advance(61 * time.Second)
	require.Eventually(t, h.completed(t, id), waitFor, tick)

	v.mu.Lock()
	defer v.mu.Unlock()
	require.Len(t, v.submitted, 1)
	assert.Equal(t, []string{id.String()}, v.submitted[0].PublicSignals)
}

func TestNewEngineValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no routes", func(o *Options) { o.Config.RoutePairs = nil }},
		{"missing destination client", func(o *Options) { delete(o.Clients, chains.BaseSepolia) }},
		{"missing origin client", func(o *Options) { delete(o.Clients, chains.HorizenTestnet) }},
		{"zero increment", func(o *Options) { o.Config.BidIncrement = new(big.Int) }},
		{"zero bid interval", func(o *Options) { o.Config.BidInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{Config: testConfig(), Clients: h.clients(solverID)}
			tt.mutate(&opts)
			_, err := NewEngine(opts)
			assert.Error(t, err)
		})
	}
}

// storeSplit keeps a 60/35 manifest for the intent in the relayer
func (h *harness) storeSplit(t *testing.T, id *big.Int) {
	t.Helper()
	require.NoError(t, h.relayer.StoreRecipients(context.Background(), &models.RecipientManifest{
		IntentID:   id.String(),
		ChainID:    chains.BaseSepolia,
		Recipients: []common.Address{alice, bob},
		Amounts:    amounts(60, 35),
	}))
}

// winAsSolver bids for the solver and finalizes the auction, depositing the bid when asked
func (h *harness) winAsSolver(t *testing.T, id *big.Int, bid int64, deposit bool) {
	t.Helper()
	ctx := context.Background()
	s := h.origin.As(solverID)
	_, err := s.PlaceBid(ctx, id, big.NewInt(bid))
	require.NoError(t, err)
	h.clock.Advance(61 * time.Second)
	_, err = s.FinalizeAuction(ctx, id)
	require.NoError(t, err)
	if !deposit {
		return
	}
	_, err = s.ApproveToken(ctx, h.srcToken, h.origin.ContractAddress(), big.NewInt(bid))
	require.NoError(t, err)
	_, err = s.DepositAndPickup(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StateDeposited, h.state(t, id))
}

func (h *harness) assertSplitPaid(t *testing.T) {
	t.Helper()
	assert.Equal(t, int64(60), h.destination.BalanceOf(h.dstToken, alice).Int64())
	assert.Equal(t, int64(35), h.destination.BalanceOf(h.dstToken, bob).Int64())
	assert.Equal(t, int64(1105), h.origin.BalanceOf(h.srcToken, solverID).Int64())
	assert.Equal(t, int64(0), h.origin.EscrowBalance(h.srcToken).Int64())
}

func TestEngineResumesDepositedIntentAfterRestart(t *testing.T) {
	h := newHarness(t)
	id := h.createIntent(t, 95)
	h.storeSplit(t, id)
	h.winAsSolver(t, id, 95, true)

	e := h.engine(t, solverID, nil)
	run(t, e)

	require.Eventually(t, h.completed(t, id), waitFor, tick)
	require.Eventually(t, idle(t, e), waitFor, tick)
	h.assertSplitPaid(t)
}

func TestEngineResumesWonIntentWhilePaused(t *testing.T) {
	h := newHarness(t)
	e := h.engine(t, solverID, nil)
	run(t, e)
	e.Pause()

	id := h.createIntent(t, 95)
	h.storeSplit(t, id)
	// let discovery pass the creation while the auction is open
	require.Eventually(t, func() bool {
		st, err := e.Status(context.Background())
		require.NoError(t, err)
		return st.Chains[1].LastProcessedBlock >= h.origin.BlockNumber()
	}, waitFor, tick)
	assert.False(t, h.highestBid(t, id).HasBid())

	h.winAsSolver(t, id, 95, false)

	require.Eventually(t, h.completed(t, id), waitFor, tick)
	h.assertSplitPaid(t)
}

func TestEngineIgnoresAuctionsWonByOthers(t *testing.T) {
	h := newHarness(t)
	id := h.createIntent(t, 95)
	ctx := context.Background()
	_, err := h.origin.As(rivalID).PlaceBid(ctx, id, big.NewInt(95))
	require.NoError(t, err)
	h.clock.Advance(61 * time.Second)
	_, err = h.origin.As(rivalID).FinalizeAuction(ctx, id)
	require.NoError(t, err)

	e := h.engine(t, solverID, nil)
	run(t, e)

	assert.Never(t, func() bool {
		solved, err := h.destination.As(user).IsIntentSolvedOnChain2(ctx, id)
		require.NoError(t, err)
		return solved
	}, 100*time.Millisecond, tick)
	assert.Equal(t, models.StateFinalized, h.state(t, id))
	assert.Eventually(t, idle(t, e), waitFor, tick)
}

// flakyDestination fails the first solve calls like an unreachable node
type flakyDestination struct {
	ledger.Client
	failures *atomic.Int32
}

func (f *flakyDestination) SolveIntentOnChain2(ctx context.Context, params ledger.SolveParams) (*models.Receipt, error) {
	if f.failures.Dec() >= 0 {
		return nil, errors.New("rpc request timed out")
	}
	return f.Client.SolveIntentOnChain2(ctx, params)
}

func TestEngineResumesFailedDelivery(t *testing.T) {
	h := newHarness(t)
	// one more failure than a task retries on its own
	failures := atomic.NewInt32(maxStepAttempts + 1)
	e := h.engine(t, solverID, func(o *Options) {
		o.Clients[chains.BaseSepolia] = &flakyDestination{Client: h.destination.As(solverID), failures: failures}
	})
	run(t, e)

	id := h.createIntent(t, 95)
	h.storeSplit(t, id)
	require.Eventually(t, func() bool { return h.highestBid(t, id).HasBid() }, waitFor, tick)
	h.clock.Advance(61 * time.Second)

	require.Eventually(t, h.completed(t, id), waitFor, tick)
	assert.Negative(t, failures.Load())
	h.assertSplitPaid(t)
}
