package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/health"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayerclient"
	"github.com/speedrun-hq/speedrun-intents/pkg/solver"
)

var proofDir string

var solverCmd = &cobra.Command{
	Use:   "solver",
	Short: "Run the solver: bid on intents, deliver on the destination chain, settle through the relayer",
	Long: `Run the solver engine and its control server.

The solver watches the origin chain of every configured route for new intents,
bids on the profitable ones, delivers the funds of won intents to the recipients
stored in the relayer and asks the relayer to settle.

Configuration comes from the environment (see .env.example). The control server
listens on SOLVER_PORT and serves /status, /active-intents, /stop, /start and
/metrics.`,
	Args: cobra.NoArgs,
	RunE: runSolver,
}

func init() {
	rootCmd.AddCommand(solverCmd)
	solverCmd.Flags().StringVar(&proofDir, "proof-dir", "", "Directory of delivery proofs for chains settled through the proof gate")
}

func runSolver(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg.LoggerConfig)

	ctx, stop := signalContext()
	defer stop()

	ids := routeChains(cfg.Solver.RoutePairs)
	set, err := dialChains(ctx, cfg, ids, log)
	if err != nil {
		return err
	}
	defer set.Close()
	set.startGasPrices(ctx, log)

	startBlocks := make(map[int]uint64)
	for _, id := range ids {
		if block := cfg.Chains[id].StartBlock; block > 0 {
			startBlocks[id] = block
		}
	}

	relayer := relayerclient.New(cfg.Solver.RelayerURL, log.Named("relayer"))
	opts := solver.Options{
		Config:      cfg.Solver,
		Clients:     set.ledgers(),
		Breakers:    newBreakers(ids, cfg.CircuitBreaker, log),
		Manifests:   relayer,
		Settler:     relayer,
		StartBlocks: startBlocks,
		Logger:      log.Named("solver"),
	}
	if proofDir != "" {
		opts.Proofs = proofFiles{dir: proofDir}
		opts.Policy = cfg.Proof
	}
	engine, err := solver.NewEngine(opts)
	if err != nil {
		return err
	}

	server := health.NewServer(cfg.Solver.Port, engine, cfg.MetricsAPIKey, cfg.Relayer.ShutdownTimeout, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Solver stopped")
	return nil
}
