package core

import (
	"encoding/json"
	"time"
)

// StageName identifies one pipeline stage from the fixed enumerated set.
type StageName string

const (
	StageBehavioral StageName = "behavioral"
	StageInterest   StageName = "interest"
	StageRisk       StageName = "risk"
	StageDecision   StageName = "decision"
	StageValidation StageName = "validation"
	StageEvaluator  StageName = "evaluator"
)

// stagePositions fixes the topological order of the pipeline. StageRecords
// for a single application are totally ordered by (position, revision).
var stagePositions = map[StageName]int{
	StageBehavioral: 0,
	StageInterest:   1,
	StageRisk:       2,
	StageDecision:   3,
	StageValidation: 4,
	StageEvaluator:  5,
}

// StageNames returns all stage names in pipeline order.
func StageNames() []StageName {
	return []StageName{
		StageBehavioral,
		StageInterest,
		StageRisk,
		StageDecision,
		StageValidation,
		StageEvaluator,
	}
}

// Position returns the stage's index in the fixed pipeline order.
// Unknown stages sort last.
func (s StageName) Position() int {
	if p, ok := stagePositions[s]; ok {
		return p
	}
	return len(stagePositions)
}

// Valid reports whether the name belongs to the enumerated stage set.
func (s StageName) Valid() bool {
	_, ok := stagePositions[s]
	return ok
}

// StageStatus is the outcome of one stage execution.
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageRecord is one execution of one stage. Immutable once written: a
// given (application, stage, revision) triple is recorded exactly once.
type StageRecord struct {
	ApplicationID string          `json:"application_id"`
	Stage         StageName       `json:"stage"`
	Revision      int             `json:"revision"`
	InputDigest   string          `json:"input_digest"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        StageStatus     `json:"status"`
	Err           string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DecodePayload unmarshals the record payload into the provided value.
func (r *StageRecord) DecodePayload(v any) error {
	return json.Unmarshal(r.Payload, v)
}
