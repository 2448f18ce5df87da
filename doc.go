// Package clara is a loan application assessment pipeline that turns raw
// applicant data and transaction statements into an auditable lending decision.
//
// Clara-Go runs every application through a fixed sequence of stages, records
// each stage's output in an append-only audit trail, and lets a deterministic
// evaluator send work back for bounded revision when the assessment does not
// hold up.
//
// Key Components:
//
//   - Core: Fundamental types shared across the pipeline: StageRecord,
//     Application, the stage payloads (BehavioralProfile, InterestEstimate,
//     RiskEstimate, Decision, ValidationScore, EvaluatorVerdict), and the
//     Judge, Predictor and Embedder capability interfaces.
//
//   - Stages: The six assessment stages:
//     * Behavioral: derives financial features and behavioral profile flags
//       from bank and card statements, with nearest-neighbor context
//     * Interest: estimates an interest rate from applicant and profile features
//     * Risk: scores default risk given the proposed rate
//     * Decision: approves or denies and computes the monthly installment
//     * Validation: scores the decision for faithfulness, relevance and
//       correctness against the assembled evidence
//     * Evaluator: accepts the assessment or issues a revision directive
//
//   - Pipeline: The orchestrator that drives stages in order, retries
//     transient failures, honors revision directives within a budget, and
//     the Service that manages concurrent in-flight applications.
//
//   - Audit: Append-only stage record storage with in-memory and SQLite
//     backends; duplicate (application, stage, revision) writes are rejected.
//
//   - Retrieval: Case corpora loaded from JSON or Parquet and a cosine
//     similarity engine for nearest-neighbor lookups.
//
//   - Judge: Scoring capabilities for validation, either heuristic lexical
//     overlap or an Anthropic model acting as grader.
//
//   - Predict: Linear and logistic models over engineered feature vectors
//     for interest and risk estimation.
//
// For usage examples, see the clara-cli command under cmd/clara-cli.
package clara
