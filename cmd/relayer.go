package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/proofclient"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
	"github.com/speedrun-hq/speedrun-intents/pkg/relayer"
)

var relayerCmd = &cobra.Command{
	Use:   "relayer",
	Short: "Run the relayer: verify deliveries, settle escrows, store recipient lists",
	Long: `Run the relayer HTTP service on PORT.

The relayer signs settlements with PRIVATE_KEY, which must belong to an
authorized relayer of every origin contract. Recipient lists are kept in the
backend selected by RECIPIENT_STORE_BACKEND (memory, redis or postgres).
Destinations listed in PROOF_REQUIRED_CHAINS settle through
/settle-with-proof only after the proof provider at PROOF_API_URL finalizes.`,
	Args: cobra.NoArgs,
	RunE: runRelayer,
}

func init() {
	rootCmd.AddCommand(relayerCmd)
}

func runRelayer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg.LoggerConfig)

	ctx, stop := signalContext()
	defer stop()

	set, err := dialChains(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer set.Close()
	set.startGasPrices(ctx, log)

	store, err := recipients.NewStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open recipient store: %w", err)
	}
	defer store.Close()
	log.Info("Recipient store backend: %s", cfg.Store.Backend)

	proofs := proofclient.New(cfg.Proof.APIURL, cfg.Proof.APIKey, log.Named("proofs"))
	if !proofs.Enabled() && len(cfg.Proof.RequiredChains) > 0 {
		log.Notice("PROOF_API_URL is not set: settlements to chains %v through /settle-with-proof will fail", cfg.Proof.RequiredChains)
	}

	service := relayer.NewService(relayer.Options{
		Ledgers:           set.ledgers(),
		Store:             store,
		Proofs:            proofs,
		Policy:            cfg.Proof,
		ProofPollInterval: cfg.Proof.PollInterval,
		ProofMaxAttempts:  cfg.Proof.MaxAttempts,
		Logger:            log.Named("relayer"),
	})
	server := relayer.NewServer(service, cfg.Relayer.Port, cfg.Relayer.ShutdownTimeout, log)
	if err := server.Start(ctx); err != nil {
		return err
	}
	log.Info("Relayer stopped")
	return nil
}
