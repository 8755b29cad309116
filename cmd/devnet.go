package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/health"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayer"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayerclient"
	"github.com/speedrun-hq/speedrun-intents/pkg/solver"
)

var (
	devnetRelayerPort string
	devnetSolverPort  string
	devnetIntents     int
	devnetInterval    time.Duration
	devnetAuction     time.Duration
)

var devnetCmd = &cobra.Command{
	Use:   "devnet",
	Short: "Run a solver and a relayer over two in-memory chains",
	Long: `Run a complete local bridge without any RPC endpoint.

Two in-memory ledgers (chains 31337 and 31338) share the wall clock. A relayer
and a solver run against them, and a user account opens demo intents with
private recipient lists. Watch the solver control server (/active-intents) or
the relayer (/list-stored-intents) while intents go through their auctions.`,
	Args: cobra.NoArgs,
	RunE: runDevnet,
}

func init() {
	rootCmd.AddCommand(devnetCmd)
	devnetCmd.Flags().StringVar(&devnetRelayerPort, "relayer-port", config.DefaultRelayerPort, "Relayer HTTP port")
	devnetCmd.Flags().StringVar(&devnetSolverPort, "solver-port", config.DefaultSolverPort, "Solver control port")
	devnetCmd.Flags().IntVar(&devnetIntents, "intents", 3, "Demo intents to open (0 for none)")
	devnetCmd.Flags().DurationVar(&devnetInterval, "interval", 20*time.Second, "Delay between demo intents")
	devnetCmd.Flags().DurationVar(&devnetAuction, "auction", 15*time.Second, "Auction duration of demo intents")
}

// devnet is the pair of in-memory chains and the accounts acting on them
type devnet struct {
	origin      *ledger.Chain
	destination *ledger.Chain
	srcToken    common.Address
	dstToken    common.Address
	user        common.Address
	solver      common.Address
	relayer     common.Address
}

func newAccount() (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func newDevnet(ctx context.Context) (*devnet, error) {
	var accounts [4]common.Address
	for i := range accounts {
		addr, err := newAccount()
		if err != nil {
			return nil, err
		}
		accounts[i] = addr
	}
	owner := accounts[0]
	d := &devnet{
		origin:      ledger.NewChain(ledger.Options{ChainID: chains.LocalA, Owner: owner}),
		destination: ledger.NewChain(ledger.Options{ChainID: chains.LocalB, Owner: owner}),
		user:        accounts[1],
		solver:      accounts[2],
		relayer:     accounts[3],
	}
	d.srcToken = d.origin.DeployToken("USDC")
	d.dstToken = d.destination.DeployToken("USDC")

	supply := big.NewInt(1_000_000)
	if err := d.origin.Mint(d.srcToken, d.user, supply); err != nil {
		return nil, err
	}
	if err := d.destination.Mint(d.dstToken, d.solver, supply); err != nil {
		return nil, err
	}
	for _, chain := range []*ledger.Chain{d.origin, d.destination} {
		if _, err := chain.As(owner).AddRelayer(ctx, d.relayer); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *devnet) clients(as common.Address) map[int]ledger.Client {
	return map[int]ledger.Client{
		chains.LocalA: d.origin.As(as),
		chains.LocalB: d.destination.As(as),
	}
}

func devnetSolverConfig() config.SolverConfig {
	return config.SolverConfig{
		Port:                   devnetSolverPort,
		MinProfitMargin:        config.DefaultMinProfitMargin,
		BalanceBuffer:          config.DefaultBalanceBuffer,
		MaxBidAmount:           big.NewInt(1000),
		BidIncrement:           big.NewInt(1),
		PollingInterval:        time.Second,
		BidInterval:            2 * time.Second,
		MaxBlockRange:          config.DefaultMaxBlockRange,
		SettleDelay:            time.Second,
		CompletionTimeout:      time.Minute,
		CompletionPollInterval: time.Second,
		AuctionGrace:           config.DefaultAuctionGrace,
		RelayerURL:             "http://localhost:" + devnetRelayerPort,
		RoutePairs:             map[int]int{chains.LocalA: chains.LocalB},
	}
}

func runDevnet(cmd *cobra.Command, _ []string) error {
	for _, port := range []string{devnetRelayerPort, devnetSolverPort} {
		if err := parsePort(port); err != nil {
			return err
		}
	}
	if devnetInterval <= 0 || devnetAuction <= 0 {
		return fmt.Errorf("--interval and --auction must be positive")
	}
	log := newLogger(cmd, config.LoggerConfig{Level: logger.InfoLevel, Coloring: true})

	ctx, stop := signalContext()
	defer stop()

	d, err := newDevnet(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up devnet: %w", err)
	}
	log.Info("Devnet up: user %s, solver %s, relayer %s", d.user.Hex(), d.solver.Hex(), d.relayer.Hex())

	service := relayer.NewService(relayer.Options{
		Ledgers: d.clients(d.relayer),
		Store:   recipients.NewMemoryStore(),
		Logger:  log.Named("relayer"),
	})
	relayerServer := relayer.NewServer(service, devnetRelayerPort, config.DefaultShutdownTimeout, log.Named("relayer"))

	cfg := devnetSolverConfig()
	relayerAPI := relayerclient.New(cfg.RelayerURL, log.Named("relayer-client"))
	engine, err := solver.NewEngine(solver.Options{
		Config:    cfg,
		Clients:   d.clients(d.solver),
		Manifests: relayerAPI,
		Settler:   relayerAPI,
		Logger:    log.Named("solver"),
	})
	if err != nil {
		return err
	}
	controlServer := health.NewServer(cfg.Port, engine, "", config.DefaultShutdownTimeout, log.Named("control"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relayerServer.Start(gctx) })
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return controlServer.Start(gctx) })
	g.Go(func() error { return d.openDemoIntents(gctx, relayerAPI, log.Named("user")) })
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Devnet stopped")
	return nil
}

// openDemoIntents creates intents paying two fresh recipients 60/35 of an expected 95
func (d *devnet) openDemoIntents(ctx context.Context, api *relayerclient.Client, log logger.Logger) error {
	if devnetIntents <= 0 {
		return nil
	}
	if err := waitForRelayer(ctx, api); err != nil || ctx.Err() != nil {
		return err
	}

	user := d.origin.As(d.user)
	ticker := time.NewTicker(devnetInterval)
	defer ticker.Stop()
	for i := 0; i < devnetIntents; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}

		if _, err := user.ApproveToken(ctx, d.srcToken, user.ContractAddress(), big.NewInt(105)); err != nil {
			return err
		}
		id, _, err := user.CreateIntent(ctx, ledger.CreateIntentParams{
			SourceToken:               d.srcToken,
			DestinationToken:          d.dstToken,
			SourceAmount:              big.NewInt(100),
			ExpectedDestinationAmount: big.NewInt(95),
			Reward:                    big.NewInt(5),
			AuctionDuration:           devnetAuction,
		})
		if err != nil {
			return err
		}

		alice, err := newAccount()
		if err != nil {
			return err
		}
		bob, err := newAccount()
		if err != nil {
			return err
		}
		err = api.StoreRecipients(ctx, &models.RecipientManifest{
			IntentID:   id.String(),
			ChainID:    chains.LocalB,
			Recipients: []common.Address{alice, bob},
			Amounts:    []*big.Int{big.NewInt(60), big.NewInt(35)},
		})
		if err != nil {
			log.Error("Failed to store recipients of intent %s: %v", id, err)
		}
		log.InfoWithChain(chains.LocalA, "Opened intent %s paying %s and %s", id, alice.Hex(), bob.Hex())
		go d.reportDelivery(ctx, id, alice, bob, log)
	}
	return nil
}

// reportDelivery logs the recipient balances once the intent completes
func (d *devnet) reportDelivery(ctx context.Context, id *big.Int, alice, bob common.Address, log logger.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		intent, err := d.origin.As(d.user).GetIntent(ctx, id)
		if err != nil {
			return
		}
		if !intent.State.IsTerminal() {
			continue
		}
		log.InfoWithChain(chains.LocalB, "Intent %s %s: recipients hold %s and %s", id, intent.State,
			d.destination.BalanceOf(d.dstToken, alice), d.destination.BalanceOf(d.dstToken, bob))
		return
	}
}

func waitForRelayer(ctx context.Context, api *relayerclient.Client) error {
	for attempt := 1; ; attempt++ {
		if err := api.Health(ctx); err == nil {
			return nil
		} else if attempt == 50 {
			return fmt.Errorf("relayer at %s did not come up: %w", api.Endpoint(), err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func parsePort(s string) error {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", s)
	}
	return nil
}
