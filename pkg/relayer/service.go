// Package relayer verifies destination delivery and settles intents on their origin ledger.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/metrics"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/proofclient"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
)

const (
	defaultProofPollInterval = 5 * time.Second
	defaultProofMaxAttempts  = 60

	endpointSettle          = "settle"
	endpointSettleWithProof = "settle-with-proof"
)

// ProofPolicy decides which destination chains need a finalized proof before settlement
type ProofPolicy interface {
	RequiresProof(destinationChainID int) bool
}

// ProofVerifier is the external proof finalization oracle
type ProofVerifier interface {
	Enabled() bool
	SubmitProof(ctx context.Context, proofType string, proof models.ProofData) (string, bool, error)
	JobStatus(ctx context.Context, jobID string) (*models.ProofJob, error)
	WaitForFinalization(ctx context.Context, jobID string, interval time.Duration, maxAttempts int) (*models.ProofJob, int, error)
}

// Options configures a Service
type Options struct {
	Ledgers           map[int]ledger.Client
	Store             recipients.Store
	Proofs            ProofVerifier
	Policy            ProofPolicy
	ProofPollInterval time.Duration
	ProofMaxAttempts  int
	Logger            logger.Logger
}

// Service verifies destination delivery and settles origin escrows
type Service struct {
	ledgers           map[int]ledger.Client
	store             recipients.Store
	proofs            ProofVerifier
	policy            ProofPolicy
	proofPollInterval time.Duration
	proofMaxAttempts  int
	logger            logger.Logger
}

type noProofPolicy struct{}

func (noProofPolicy) RequiresProof(int) bool { return false }

// NewService creates a relayer service over per-chain ledger clients bound to the relayer identity
func NewService(opts Options) *Service {
	if opts.Policy == nil {
		opts.Policy = noProofPolicy{}
	}
	if opts.ProofPollInterval <= 0 {
		opts.ProofPollInterval = defaultProofPollInterval
	}
	if opts.ProofMaxAttempts <= 0 {
		opts.ProofMaxAttempts = defaultProofMaxAttempts
	}
	if opts.Store == nil {
		opts.Store = recipients.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = &logger.EmptyLogger{}
	}
	return &Service{
		ledgers:           opts.Ledgers,
		store:             opts.Store,
		proofs:            opts.Proofs,
		policy:            opts.Policy,
		proofPollInterval: opts.ProofPollInterval,
		proofMaxAttempts:  opts.ProofMaxAttempts,
		logger:            opts.Logger,
	}
}

// Chains returns the ids of the chains the relayer can reach
func (s *Service) Chains() []int {
	ids := make([]int, 0, len(s.ledgers))
	for id := range s.ledgers {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) ledgerFor(chainID int) (ledger.Client, error) {
	client, ok := s.ledgers[chainID]
	if !ok {
		return nil, newError(KindInvalidParameters, CodeUnsupportedChain, nil, "chain %d is not supported", chainID)
	}
	return client, nil
}

// Verify reports whether an intent was solved on the given destination chain
func (s *Service) Verify(ctx context.Context, chain2IntentID *big.Int, chainID int) (bool, error) {
	if chain2IntentID == nil {
		return false, newError(KindInvalidParameters, CodeInvalidIntentID, nil, "chain2IntentId is required")
	}
	destination, err := s.ledgerFor(chainID)
	if err != nil {
		return false, err
	}
	solved, err := destination.IsIntentSolvedOnChain2(ctx, chain2IntentID)
	if err != nil {
		return false, newError(KindExternalServiceFailure, CodeRPC, err, "failed to read solved flag on chain %d", chainID)
	}
	return solved, nil
}

// settlement is a validated settle request
type settlement struct {
	attemptID      string
	intentID       *big.Int
	chain2IntentID *big.Int
	origin         ledger.Client
	destination    ledger.Client
	solver         common.Address
	proof          *models.ProofData
}

// Settle pays the winning solver once delivery is confirmed on the destination chain.
// Destinations that require a proof only settle once the proof in the request finalizes.
func (s *Service) Settle(ctx context.Context, req models.SettleRequest) (*models.SettleResponse, error) {
	return s.settle(ctx, req, endpointSettle)
}

// SettleWithProof runs the same pipeline as Settle under its own endpoint label
func (s *Service) SettleWithProof(ctx context.Context, req models.SettleRequest) (*models.SettleResponse, error) {
	return s.settle(ctx, req, endpointSettleWithProof)
}

func (s *Service) settle(ctx context.Context, req models.SettleRequest, endpoint string) (*models.SettleResponse, error) {
	attemptID := uuid.NewString()

	st, err := s.parseSettleRequest(req)
	if err != nil {
		s.recordSettlement(req.OriginChainID, endpoint, err)
		s.logger.Error("Settle attempt %s rejected: %v", attemptID, err)
		return nil, withAttempt(err, attemptID)
	}
	st.attemptID = attemptID
	originID := st.origin.ChainID()
	s.logger.InfoWithChain(originID, "Settle attempt %s for intent %s (destination %d, id %s)",
		attemptID, st.intentID, st.destination.ChainID(), st.chain2IntentID)

	resp, err := s.runPipeline(ctx, st)
	s.recordSettlement(originID, endpoint, err)
	if err != nil {
		s.logger.ErrorWithChain(originID, "Settle attempt %s for intent %s failed: %v", attemptID, st.intentID, err)
		return nil, withAttempt(err, attemptID)
	}
	s.logger.NoticeWithChain(originID, "Settle attempt %s for intent %s confirmed in tx %s", attemptID, st.intentID, resp.TransactionHash)
	return resp, nil
}

func withAttempt(err error, attemptID string) error {
	if e, ok := AsError(err); ok {
		e.AttemptID = attemptID
	}
	return err
}

func (s *Service) parseSettleRequest(req models.SettleRequest) (*settlement, error) {
	intentID, err := models.ParseIntentID(req.IntentID)
	if err != nil {
		return nil, newError(KindInvalidParameters, CodeInvalidIntentID, err, "invalid intentId")
	}
	chain2IntentID := intentID
	if req.Chain2IntentID != "" {
		if chain2IntentID, err = models.ParseIntentID(req.Chain2IntentID); err != nil {
			return nil, newError(KindInvalidParameters, CodeInvalidIntentID, err, "invalid chain2IntentId")
		}
	}

	originChainID := req.OriginChainID
	if originChainID == 0 {
		originChainID = models.OriginChainOf(intentID)
	}
	origin, err := s.ledgerFor(originChainID)
	if err != nil {
		return nil, err
	}
	if req.DestinationChainID == 0 {
		return nil, newError(KindInvalidParameters, CodeUnsupportedChain, nil, "destinationChainId is required")
	}
	destination, err := s.ledgerFor(req.DestinationChainID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.SolverAddress) == "" {
		return nil, newError(KindInvalidParameters, CodeInvalidAddress, nil, "solverAddress is required")
	}
	solver, err := recipients.ParseAddress(req.SolverAddress)
	if err != nil {
		return nil, newError(KindInvalidParameters, CodeInvalidAddress, err, "invalid solverAddress")
	}

	return &settlement{
		intentID:       intentID,
		chain2IntentID: chain2IntentID,
		origin:         origin,
		destination:    destination,
		solver:         solver,
		proof:          req.ProofData,
	}, nil
}

func (s *Service) runPipeline(ctx context.Context, st *settlement) (*models.SettleResponse, error) {
	destinationID := st.destination.ChainID()
	verification := &models.ProofVerification{}

	if s.policy.RequiresProof(destinationID) {
		v, err := s.verifyProof(ctx, destinationID, st.proof)
		if err != nil {
			return nil, err
		}
		verification = v
	}

	solved, err := st.destination.IsIntentSolvedOnChain2(ctx, st.chain2IntentID)
	if err != nil {
		return nil, newError(KindExternalServiceFailure, CodeRPC, err, "failed to read solved flag on chain %d", destinationID)
	}
	if !solved {
		return nil, newError(KindStateConflict, CodeNotSolved, nil, "intent %s is not solved on chain %d", st.chain2IntentID, destinationID)
	}

	originID := st.origin.ChainID()
	authorized, err := st.origin.IsAuthorizedRelayer(ctx, st.origin.Address())
	if err != nil {
		return nil, newError(KindExternalServiceFailure, CodeRPC, err, "failed to read relayer authorization on chain %d", originID)
	}
	if !authorized {
		return nil, newError(KindNotAuthorized, CodeRelayerNotAuthorized, nil, "relayer %s is not authorized on chain %d", st.origin.Address().Hex(), originID)
	}

	intent, err := st.origin.GetIntent(ctx, st.intentID)
	if errors.Is(err, ledger.ErrIntentNotFound) {
		return nil, newError(KindInvalidParameters, CodeIntentNotFound, err, "intent %s does not exist on chain %d", st.intentID, originID)
	}
	if err != nil {
		return nil, newError(KindExternalServiceFailure, CodeRPC, err, "failed to read intent on chain %d", originID)
	}
	switch {
	case intent.State == models.StateCompleted:
		return nil, newError(KindStateConflict, CodeAlreadyCompleted, nil, "intent %s is already completed", st.intentID)
	case intent.State != models.StateDeposited:
		return nil, newError(KindStateConflict, CodeNotDeposited, nil, "intent %s is %s, the winner has not deposited", st.intentID, intent.State)
	case st.solver != intent.WinningSolver:
		return nil, newError(KindNotAuthorized, CodeWrongSolver, nil, "solver %s did not win intent %s", st.solver.Hex(), st.intentID)
	}

	receipt, err := st.origin.SettleIntentWithChain2Verification(ctx, st.intentID, st.chain2IntentID)
	if err != nil {
		return nil, settlementError(err)
	}

	return &models.SettleResponse{
		Success:           true,
		AttemptID:         st.attemptID,
		TransactionHash:   receipt.TxHash.Hex(),
		BlockNumber:       receipt.BlockNumber,
		ChainID:           originID,
		Network:           networkName(originID),
		IntentID:          st.intentID.String(),
		Chain2IntentID:    st.chain2IntentID.String(),
		SolverAddress:     intent.WinningSolver.Hex(),
		ProofVerification: verification,
	}, nil
}

// verifyProof submits the proof and blocks until the provider finalizes or rejects it
func (s *Service) verifyProof(ctx context.Context, destinationID int, proof *models.ProofData) (*models.ProofVerification, error) {
	if proof == nil || proof.Proof == "" {
		return nil, newError(KindInvalidParameters, CodeMissingProof, nil, "chain %d requires proofData", destinationID)
	}
	if s.proofs == nil || !s.proofs.Enabled() {
		return nil, newError(KindExternalServiceFailure, CodeProofProvider, proofclient.ErrNotConfigured, "chain %d requires a proof", destinationID)
	}

	jobID, _, err := s.proofs.SubmitProof(ctx, proof.ProofType, *proof)
	if err != nil {
		metrics.ProofVerifications.WithLabelValues(strconv.Itoa(destinationID), "submit_failed").Inc()
		return nil, newError(KindExternalServiceFailure, CodeProofProvider, err, "proof submission failed")
	}
	s.logger.InfoWithChain(destinationID, "Waiting for proof job %s to finalize", jobID)

	job, attempts, err := s.proofs.WaitForFinalization(ctx, jobID, s.proofPollInterval, s.proofMaxAttempts)
	verification := &models.ProofVerification{Required: true, JobID: jobID, Attempts: attempts}
	if job != nil {
		verification.Status = job.Status
		verification.TxHash = job.TxHash
	}

	switch {
	case err == nil:
		metrics.ProofVerifications.WithLabelValues(strconv.Itoa(destinationID), string(models.ProofFinalized)).Inc()
		return verification, nil
	case errors.Is(err, proofclient.ErrProofFailed):
		metrics.ProofVerifications.WithLabelValues(strconv.Itoa(destinationID), string(models.ProofFailed)).Inc()
		return nil, newError(KindStateConflict, CodeProofRejected, err, "proof job %s was rejected", jobID)
	case errors.Is(err, proofclient.ErrPollingExhausted):
		metrics.ProofVerifications.WithLabelValues(strconv.Itoa(destinationID), "timeout").Inc()
		return nil, newError(KindVerificationTimeout, CodeProofTimeout, err, "proof job %s not finalized after %d attempts", jobID, attempts)
	default:
		metrics.ProofVerifications.WithLabelValues(strconv.Itoa(destinationID), "provider_error").Inc()
		return nil, newError(KindExternalServiceFailure, CodeProofProvider, err, "proof status polling failed for job %s", jobID)
	}
}

// SubmitProof forwards a standalone proof to the provider
func (s *Service) SubmitProof(ctx context.Context, proof *models.ProofData) (*models.SubmitProofResponse, error) {
	if proof == nil || proof.Proof == "" {
		return nil, newError(KindInvalidParameters, CodeMissingProof, nil, "proofData is required")
	}
	if s.proofs == nil || !s.proofs.Enabled() {
		return nil, newError(KindExternalServiceFailure, CodeProofProvider, proofclient.ErrNotConfigured, "no proof provider configured")
	}
	jobID, optimistic, err := s.proofs.SubmitProof(ctx, proof.ProofType, *proof)
	if err != nil {
		return nil, newError(KindExternalServiceFailure, CodeProofProvider, err, "proof submission failed")
	}
	return &models.SubmitProofResponse{
		Success:          true,
		JobID:            jobID,
		Status:           models.ProofSubmitted,
		OptimisticVerify: optimistic,
	}, nil
}

// ProofStatus returns the provider's view of a proof job
func (s *Service) ProofStatus(ctx context.Context, jobID string) (*models.ProofJob, error) {
	if jobID == "" {
		return nil, newError(KindInvalidParameters, CodeInvalidJobID, nil, "jobId is required")
	}
	if s.proofs == nil || !s.proofs.Enabled() {
		return nil, newError(KindExternalServiceFailure, CodeProofProvider, proofclient.ErrNotConfigured, "no proof provider configured")
	}
	job, err := s.proofs.JobStatus(ctx, jobID)
	if err != nil {
		return nil, newError(KindExternalServiceFailure, CodeProofProvider, err, "failed to fetch proof job %s", jobID)
	}
	return job, nil
}

// StoreRecipients validates and stores a payout manifest, replacing any previous one
func (s *Service) StoreRecipients(ctx context.Context, req *models.StoreRecipientsRequest) (*models.RecipientManifest, error) {
	manifest, err := recipients.FromRequest(req)
	if err != nil {
		metrics.StoredManifests.WithLabelValues("put", "invalid").Inc()
		return nil, newError(KindInvalidParameters, CodeInvalidManifest, err, "invalid manifest")
	}
	if err := s.store.Put(ctx, manifest); err != nil {
		metrics.StoredManifests.WithLabelValues("put", "error").Inc()
		return nil, fmt.Errorf("failed to store manifest: %w", err)
	}
	metrics.StoredManifests.WithLabelValues("put", "ok").Inc()
	s.logger.Info("Stored %d recipients for intent %s", len(manifest.Recipients), manifest.IntentID)
	return manifest, nil
}

// GetRecipients returns the stored manifest of an intent; recipients.ErrNotFound when absent
func (s *Service) GetRecipients(ctx context.Context, intentID string) (*models.RecipientManifest, error) {
	manifest, err := s.store.Get(ctx, intentID)
	metrics.StoredManifests.WithLabelValues("get", storeResult(err)).Inc()
	return manifest, err
}

// DeleteRecipients removes the manifest of an intent
func (s *Service) DeleteRecipients(ctx context.Context, intentID string) error {
	err := s.store.Delete(ctx, intentID)
	metrics.StoredManifests.WithLabelValues("delete", storeResult(err)).Inc()
	return err
}

// ListRecipients returns the ids of every stored manifest
func (s *Service) ListRecipients(ctx context.Context) ([]string, error) {
	ids, err := s.store.List(ctx)
	metrics.StoredManifests.WithLabelValues("list", storeResult(err)).Inc()
	return ids, err
}

func storeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, recipients.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// settlementError maps a failed settle transaction; the ledger's verdict wins over prior reads
func settlementError(err error) *Error {
	switch {
	case errors.Is(err, ledger.ErrAlreadyCompleted):
		return newError(KindStateConflict, CodeAlreadyCompleted, err, "intent already completed")
	case errors.Is(err, ledger.ErrNotDeposited):
		return newError(KindStateConflict, CodeNotDeposited, err, "winner has not deposited")
	case errors.Is(err, ledger.ErrNotAuthorizedRelayer):
		return newError(KindNotAuthorized, CodeRelayerNotAuthorized, err, "relayer not authorized")
	case ledger.IsRevert(err):
		return newError(KindStateConflict, CodeSettlementReverted, err, "settlement reverted")
	default:
		return newError(KindExternalServiceFailure, CodeRPC, err, "settlement transaction failed")
	}
}

func (s *Service) recordSettlement(chainID int, endpoint string, err error) {
	result := "success"
	if e, ok := AsError(err); ok {
		result = e.Code
	} else if err != nil {
		result = "error"
	}
	metrics.Settlements.WithLabelValues(strconv.Itoa(chainID), endpoint, result).Inc()
}

func networkName(chainID int) string {
	if name := chains.GetChainName(chainID); name != "" {
		return name
	}
	return strconv.Itoa(chainID)
}
