package chainclient

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
)

// DefaultGasPriceInterval is how often the gas price is refreshed
const DefaultGasPriceInterval = 30 * time.Second

// GasPricer refreshes the cached gas price of a chain
type GasPricer interface {
	ChainID() int
	UpdateGasPrice(ctx context.Context) (*big.Int, error)
}

// GasPriceRoutine manages the periodic updates of the gas price used for ledger transactions
type GasPriceRoutine struct {
	ctx      context.Context
	client   GasPricer
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
	mu       sync.RWMutex
	running  bool
	logger   logger.Logger
}

// NewGasPriceRoutine creates a new gas price routine
func NewGasPriceRoutine(ctx context.Context, client GasPricer, interval time.Duration, logger logger.Logger) *GasPriceRoutine {
	if interval <= 0 {
		interval = DefaultGasPriceInterval
	}
	return &GasPriceRoutine{
		ctx:      ctx,
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the periodic updates
func (r *GasPriceRoutine) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	r.running = true

	go r.run(r.stopChan, r.done)
}

// Stop halts the periodic updates and waits for the loop to exit
func (r *GasPriceRoutine) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopChan)
	done := r.done
	r.stopChan = nil
	r.running = false
	r.mu.Unlock()

	<-done
}

// IsRunning returns whether the routine is currently running
func (r *GasPriceRoutine) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *GasPriceRoutine) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.update()

	for {
		select {
		case <-ticker.C:
			r.update()
		case <-stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *GasPriceRoutine) update() {
	gasPrice, err := r.client.UpdateGasPrice(r.ctx)
	if err != nil {
		r.logger.ErrorWithChain(r.client.ChainID(), "Failed to update gas price: %v", err)
		return
	}
	r.logger.DebugWithChain(r.client.ChainID(), "Gas price updated: %s wei", gasPrice)
}
