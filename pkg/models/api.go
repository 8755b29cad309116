package models

// Wire types of the relayer HTTP surface.

// VerifyRequest asks whether an intent was solved on a destination chain
type VerifyRequest struct {
	Chain2IntentID string `json:"chain2IntentId"`
	ChainID        int    `json:"chainId"`
}

// VerifyResponse carries the destination solved flag
type VerifyResponse struct {
	Success        bool   `json:"success"`
	IsSolved       bool   `json:"isSolved"`
	Chain2IntentID string `json:"chain2IntentId"`
	ChainID        int    `json:"chainId"`
}

// SettleRequest identifies an intent on both chains and the solver claiming it
type SettleRequest struct {
	IntentID           string     `json:"intentId"`
	Chain2IntentID     string     `json:"chain2IntentId"`
	OriginChainID      int        `json:"originChainId"`
	DestinationChainID int        `json:"destinationChainId"`
	SolverAddress      string     `json:"solverAddress"`
	ProofData          *ProofData `json:"proofData,omitempty"`
}

// SettleResponse is returned after the origin settlement confirmed
type SettleResponse struct {
	Success           bool               `json:"success"`
	AttemptID         string             `json:"attemptId"`
	TransactionHash   string             `json:"transactionHash"`
	BlockNumber       uint64             `json:"blockNumber"`
	ChainID           int                `json:"chainId"`
	Network           string             `json:"network"`
	IntentID          string             `json:"intentId"`
	Chain2IntentID    string             `json:"chain2IntentId"`
	SolverAddress     string             `json:"solverAddress"`
	ProofVerification *ProofVerification `json:"proofVerification,omitempty"`
}

// ProofData is an opaque proof handed to the proof verification provider
type ProofData struct {
	ProofType     string   `json:"proofType,omitempty"`
	Proof         string   `json:"proof"`
	PublicSignals []string `json:"publicSignals"`
	ImageID       string   `json:"imageId,omitempty"`
}

// ProofStatus is the job status reported by the proof verification provider
type ProofStatus string

const (
	ProofSubmitted       ProofStatus = "Submitted"
	ProofIncludedInBlock ProofStatus = "IncludedInBlock"
	ProofFinalized       ProofStatus = "Finalized"
	ProofFailed          ProofStatus = "Failed"
)

// IsTerminal reports whether polling can stop
func (s ProofStatus) IsTerminal() bool {
	return s == ProofFinalized || s == ProofFailed
}

// ProofJob is the provider's view of a submitted proof
type ProofJob struct {
	JobID     string      `json:"jobId"`
	Status    ProofStatus `json:"status"`
	TxHash    string      `json:"txHash,omitempty"`
	BlockHash string      `json:"blockHash,omitempty"`
}

// ProofVerification summarizes the proof gate of a settlement
type ProofVerification struct {
	Required bool        `json:"required"`
	JobID    string      `json:"jobId,omitempty"`
	Status   ProofStatus `json:"status,omitempty"`
	TxHash   string      `json:"txHash,omitempty"`
	Attempts int         `json:"attempts,omitempty"`
}

// SubmitProofRequest wraps standalone proof submissions
type SubmitProofRequest struct {
	ProofData *ProofData `json:"proofData"`
}

// SubmitProofResponse returns the provider job handle
type SubmitProofResponse struct {
	Success          bool        `json:"success"`
	JobID            string      `json:"jobId"`
	Status           ProofStatus `json:"status"`
	OptimisticVerify bool        `json:"optimisticVerify"`
}

// StoreRecipientsRequest carries a manifest with decimal string amounts
type StoreRecipientsRequest struct {
	IntentID   string   `json:"intentId"`
	Recipients []string `json:"recipients"`
	Amounts    []string `json:"amounts"`
	ChainID    int      `json:"chainId"`
}

// RecipientsResponse is the serialized form of a stored manifest
type RecipientsResponse struct {
	Success     bool     `json:"success"`
	IntentID    string   `json:"intentId"`
	Recipients  []string `json:"recipients"`
	Amounts     []string `json:"amounts"`
	ChainID     int      `json:"chainId"`
	TotalAmount string   `json:"totalAmount"`
	Timestamp   int64    `json:"timestamp"`
}

// ErrorResponse is the body of every non-2xx relayer reply
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	AttemptID string `json:"attemptId,omitempty"`
}
