package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func record(appID string, stage core.StageName, revision int) core.StageRecord {
	payload, _ := json.Marshal(map[string]string{"stage": string(stage)})
	return core.StageRecord{
		ApplicationID: appID,
		Stage:         stage,
		Revision:      revision,
		InputDigest:   "digest",
		Payload:       payload,
		Status:        core.StageOK,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestApplicationRoundtrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			app := core.Application{
				ID: "app-1",
				Inputs: core.RawInputs{
					Applicant: core.Applicant{LoanAmount: 10000, LoanTerm: 36, AnnualIncome: 60000},
				},
				CreatedAt: time.Now().UTC().Truncate(time.Second),
				Status:    core.StatusPending,
			}
			require.NoError(t, store.PutApplication(ctx, app))

			got, err := store.GetApplication(ctx, "app-1")
			require.NoError(t, err)
			assert.Equal(t, app.ID, got.ID)
			assert.Equal(t, core.StatusPending, got.Status)
			assert.Equal(t, 10000.0, got.Inputs.Applicant.LoanAmount)

			// Status transitions overwrite in place.
			app.Status = core.StatusExhausted
			app.Reason = "revision budget exhausted"
			app.Unresolved = true
			require.NoError(t, store.PutApplication(ctx, app))

			got, err = store.GetApplication(ctx, "app-1")
			require.NoError(t, err)
			assert.Equal(t, core.StatusExhausted, got.Status)
			assert.True(t, got.Unresolved)
		})
	}
}

func TestGetApplicationNotFound(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetApplication(context.Background(), "missing")
			require.Error(t, err)
			assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
		})
	}
}

func TestAppendRejectsDuplicates(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := record("app-1", core.StageBehavioral, 0)
			require.NoError(t, store.Append(ctx, rec))

			err := store.Append(ctx, rec)
			require.Error(t, err)
			assert.Equal(t, errors.DuplicateRecord, errors.Code(err))

			// Same stage at a new revision is fine.
			require.NoError(t, store.Append(ctx, record("app-1", core.StageBehavioral, 1)))
			// Same triple for another application is fine.
			require.NoError(t, store.Append(ctx, record("app-2", core.StageBehavioral, 0)))
		})
	}
}

func TestLatestReturnsHighestRevision(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, record("app-1", core.StageDecision, 0)))
			require.NoError(t, store.Append(ctx, record("app-1", core.StageDecision, 2)))
			require.NoError(t, store.Append(ctx, record("app-1", core.StageDecision, 1)))

			latest, err := store.Latest(ctx, "app-1", core.StageDecision)
			require.NoError(t, err)
			assert.Equal(t, 2, latest.Revision)

			_, err = store.Latest(ctx, "app-1", core.StageRisk)
			require.Error(t, err)
			assert.Equal(t, errors.ResourceNotFound, errors.Code(err))
		})
	}
}

func TestLatestTracksInterleavedStages(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// Two applications and several stages interleaved, the way
			// revision rounds append them.
			require.NoError(t, store.Append(ctx, record("app-1", core.StageBehavioral, 0)))
			require.NoError(t, store.Append(ctx, record("app-1", core.StageDecision, 0)))
			require.NoError(t, store.Append(ctx, record("app-2", core.StageBehavioral, 0)))
			require.NoError(t, store.Append(ctx, record("app-1", core.StageDecision, 1)))
			require.NoError(t, store.Append(ctx, record("app-1", core.StageBehavioral, 1)))

			for stage, want := range map[core.StageName]int{
				core.StageBehavioral: 1,
				core.StageDecision:   1,
			} {
				latest, err := store.Latest(ctx, "app-1", stage)
				require.NoError(t, err)
				assert.Equal(t, want, latest.Revision, "stage %s", stage)
			}

			latest, err := store.Latest(ctx, "app-2", core.StageBehavioral)
			require.NoError(t, err)
			assert.Equal(t, 0, latest.Revision)
		})
	}
}

func TestHistoryPreservesInsertionOrder(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sequence := []core.StageRecord{
				record("app-1", core.StageBehavioral, 0),
				record("app-1", core.StageInterest, 0),
				record("app-1", core.StageRisk, 0),
				record("app-1", core.StageBehavioral, 1),
			}
			for _, rec := range sequence {
				require.NoError(t, store.Append(ctx, rec))
			}
			require.NoError(t, store.Append(ctx, record("app-2", core.StageBehavioral, 0)))

			history, err := store.History(ctx, "app-1")
			require.NoError(t, err)
			require.Len(t, history, 4)
			for i, rec := range history {
				assert.Equal(t, sequence[i].Stage, rec.Stage)
				assert.Equal(t, sequence[i].Revision, rec.Revision)
			}
		})
	}
}

func TestHistoryEmpty(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			history, err := store.History(context.Background(), "unknown")
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestAppendPreservesPayload(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload, err := json.Marshal(core.Decision{Outcome: core.OutcomeApproved, InterestRate: 6.5, TermMonths: 36})
			require.NoError(t, err)

			rec := record("app-1", core.StageDecision, 0)
			rec.Payload = payload
			require.NoError(t, store.Append(ctx, rec))

			latest, err := store.Latest(ctx, "app-1", core.StageDecision)
			require.NoError(t, err)

			var decision core.Decision
			require.NoError(t, latest.DecodePayload(&decision))
			assert.Equal(t, core.OutcomeApproved, decision.Outcome)
			assert.Equal(t, 6.5, decision.InterestRate)
		})
	}
}
