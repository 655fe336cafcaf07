package model

import "time"

// RunStatus tracks the lifecycle of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunBackend identifies which adapter produced the raw LLM text.
type RunBackend string

const (
	BackendWorkspace    RunBackend = "workspace"
	BackendDirectUpload RunBackend = "direct_upload"
)

// Run is one recorded extraction: which workspace or files it ran against,
// which mode, and the decoded result.
type Run struct {
	ID          string     `json:"id"`
	Workspace   string     `json:"workspace,omitempty"`
	Backend     RunBackend `json:"backend"`
	Mode        string     `json:"mode"`
	Status      RunStatus  `json:"status"`
	ResultKind  ResultKind `json:"result_kind,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	Sources     []Source   `json:"sources,omitempty"`
	TokenUsage  TokenUsage `json:"token_usage"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TokenUsage tracks token consumption for a run.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}
