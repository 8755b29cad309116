package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/speedrun-hq/speedrun-intents/pkg/blockchain"
	"github.com/speedrun-hq/speedrun-intents/pkg/chainclient"
	"github.com/speedrun-hq/speedrun-intents/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

const gasPriceInterval = 30 * time.Second

// chainSet is the connected clients of one process, all signing with the configured key
type chainSet struct {
	clients map[int]*chainclient.Client
	routine []*chainclient.GasPriceRoutine
}

// dialChains connects to the given chains, or to every configured chain when ids is empty
func dialChains(ctx context.Context, cfg *config.Config, ids []int, log logger.Logger) (*chainSet, error) {
	if len(ids) == 0 {
		for id := range cfg.Chains {
			ids = append(ids, id)
		}
		sort.Ints(ids)
	}

	nonces := blockchain.NewNonceManager(log)
	set := &chainSet{clients: make(map[int]*chainclient.Client, len(ids))}
	for _, id := range ids {
		chainCfg, ok := cfg.Chains[id]
		if !ok {
			set.Close()
			return nil, fmt.Errorf("chain %d is not configured", id)
		}
		client, err := chainclient.New(ctx, chainCfg, cfg.PrivateKey, chainclient.Options{
			MaxGasPrice: cfg.MaxGasPrice,
			RPCTimeout:  cfg.RPCTimeout,
			Nonces:      nonces,
			Logger:      log,
		})
		if err != nil {
			set.Close()
			return nil, err
		}
		log.InfoWithChain(id, "Connected to %s as %s", chainCfg.RPCURL, client.Address().Hex())
		set.clients[id] = client
	}
	return set, nil
}

// ledgers returns the clients behind the ledger interface
func (s *chainSet) ledgers() map[int]ledger.Client {
	out := make(map[int]ledger.Client, len(s.clients))
	for id, c := range s.clients {
		out[id] = c
	}
	return out
}

// startGasPrices keeps the gas price of every chain fresh until Close
func (s *chainSet) startGasPrices(ctx context.Context, log logger.Logger) {
	for _, c := range s.clients {
		r := chainclient.NewGasPriceRoutine(ctx, c, gasPriceInterval, log)
		r.Start()
		s.routine = append(s.routine, r)
	}
}

func (s *chainSet) Close() {
	for _, r := range s.routine {
		r.Stop()
	}
	for _, c := range s.clients {
		c.Close()
	}
}

func newBreakers(ids []int, cfg config.CircuitBreakerConfig, log logger.Logger) map[int]*circuitbreaker.CircuitBreaker {
	breakers := make(map[int]*circuitbreaker.CircuitBreaker, len(ids))
	for _, id := range ids {
		breakers[id] = circuitbreaker.NewCircuitBreaker(id, cfg.Enabled, cfg.Threshold, cfg.WindowDuration, cfg.ResetTimeout, log)
	}
	return breakers
}

// routeChains lists every chain a set of route pairs touches
func routeChains(routes map[int]int) []int {
	seen := make(map[int]struct{})
	for origin, destination := range routes {
		seen[origin] = struct{}{}
		seen[destination] = struct{}{}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// proofFiles reads delivery proofs written by an external prover as
// <dir>/<destinationChainId>-<intentId>.json
type proofFiles struct {
	dir string
}

func (p proofFiles) ProofFor(_ context.Context, intent *models.Intent, destinationChainID int) (*models.ProofData, error) {
	path := filepath.Join(p.dir, fmt.Sprintf("%d-%s.json", destinationChainID, intent.ID))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no proof for intent %s: %w", intent.ID, err)
	}
	var proof models.ProofData
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("invalid proof file %s: %w", path, err)
	}
	return &proof, nil
}
