package core

import (
	"time"
)

// ApplicationStatus is the terminal state machine for an application.
type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "pending"
	StatusCompleted ApplicationStatus = "completed"
	StatusFailed    ApplicationStatus = "failed"
	StatusExhausted ApplicationStatus = "exhausted"
)

// Terminal reports whether the status admits no further stage writes.
func (s ApplicationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExhausted:
		return true
	default:
		return false
	}
}

// ReasonUserCancelled is the terminal reason recorded when an in-flight
// application is cancelled between stage boundaries.
const ReasonUserCancelled = "UserCancelled"

// Overrides adjusts recognized processing options for one application.
// A nil field keeps the process-wide default.
type Overrides struct {
	// RevisionBudget bounds the evaluator's revision rounds.
	RevisionBudget *int `json:"revision_budget,omitempty"`
	// MaxAttempts is the per-stage retry limit for transient failures.
	MaxAttempts *int `json:"max_attempts,omitempty"`
	// JudgeTimeout bounds each validation judge call.
	JudgeTimeout *time.Duration `json:"judge_timeout,omitempty"`
	// Validation sub-score thresholds.
	FaithfulnessThreshold *float64 `json:"faithfulness_threshold,omitempty"`
	RelevanceThreshold    *float64 `json:"relevance_threshold,omitempty"`
	CorrectnessThreshold  *float64 `json:"correctness_threshold,omitempty"`
	// TopK is the number of neighbors fetched per retrieval query.
	TopK *int `json:"top_k,omitempty"`
}

// Application is the unit of work. It owns the full StageRecord history
// (held in the audit store); only the orchestrator mutates it, and it is
// never deleted, only appended-to.
type Application struct {
	ID        string            `json:"id"`
	Inputs    RawInputs         `json:"inputs"`
	CreatedAt time.Time         `json:"created_at"`
	Status    ApplicationStatus `json:"status"`

	// Reason holds the human-readable terminal reason. Set exactly once,
	// when the status becomes terminal.
	Reason string `json:"reason,omitempty"`

	// Unresolved marks an exhausted application whose last state still
	// carries evaluator concerns. Never set on completed applications.
	Unresolved bool `json:"unresolved,omitempty"`
}

// Applicant is the loan request form data submitted with an application.
type Applicant struct {
	LoanAmount    float64 `json:"loan_amount"`
	LoanTerm      int     `json:"loan_term"`
	JobTitle      string  `json:"job_title"`
	JobTenure     float64 `json:"job_tenure"`
	HomeStatus    string  `json:"home_status"`
	AnnualIncome  float64 `json:"annual_income"`
	LoanPurpose   string  `json:"loan_purpose"`
	MonthlyDebt   float64 `json:"monthly_debt"`
	Delinquencies bool    `json:"delinquencies"`
	CreditScore   int     `json:"credit_score"`
	Accounts      int     `json:"accounts"`
	Bankruptcy    bool    `json:"bankruptcy"`
}

// BankTransaction is one row of an applicant's bank statement.
type BankTransaction struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Income      float64   `json:"income"`
	Expense     float64   `json:"expense"`
	Balance     float64   `json:"balance"`
}

// CardTransaction is one row of an applicant's credit card statement.
type CardTransaction struct {
	Date       time.Time `json:"date"`
	Category   string    `json:"category"`
	AmountPaid float64   `json:"amount_paid"`
}

// RawInputs bundles the raw applicant documents an application is
// submitted with.
type RawInputs struct {
	Applicant Applicant         `json:"applicant"`
	Bank      []BankTransaction `json:"bank"`
	Card      []CardTransaction `json:"card"`

	// Directives carries free-text banker guidance threaded through the
	// decision and evaluator stages.
	Directives string `json:"directives,omitempty"`

	// Overrides carries the per-submission option overrides so they
	// travel with the application through the store and the stages.
	Overrides *Overrides `json:"overrides,omitempty"`
}
