package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
)

// SQLiteStore implements Store on a SQLite database. Use ":memory:"
// as the path for an ephemeral database.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	initialized sync.Once
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.ensureInitialized(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// Enable WAL mode for better concurrency
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.Unknown, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS applications (
            id TEXT PRIMARY KEY,
            inputs TEXT NOT NULL,
            status TEXT NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            unresolved INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        );

        CREATE TABLE IF NOT EXISTS stage_records (
            application_id TEXT NOT NULL,
            stage TEXT NOT NULL,
            revision INTEGER NOT NULL,
            input_digest TEXT NOT NULL,
            payload TEXT,
            status TEXT NOT NULL,
            error TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            UNIQUE(application_id, stage, revision)
        );

        CREATE INDEX IF NOT EXISTS idx_stage_records_application
        ON stage_records(application_id);
        `

		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.Unknown, "failed to initialize database")
			return
		}
	})
	return initErr
}

func (s *SQLiteStore) PutApplication(ctx context.Context, app core.Application) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	inputs, err := json.Marshal(app.Inputs)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to marshal application inputs"),
			errors.Fields{"application_id": app.ID},
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
    INSERT INTO applications (id, inputs, status, reason, unresolved, created_at)
    VALUES (?, ?, ?, ?, ?, ?)
    ON CONFLICT(id) DO UPDATE SET
        status = excluded.status,
        reason = excluded.reason,
        unresolved = excluded.unresolved
    `
	_, err = s.db.ExecContext(ctx, query,
		app.ID, string(inputs), string(app.Status), app.Reason, boolInt(app.Unresolved), app.CreatedAt)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to store application"),
			errors.Fields{"application_id": app.ID},
		)
	}
	return nil
}

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (core.Application, error) {
	if err := s.ensureInitialized(); err != nil {
		return core.Application{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		app        core.Application
		inputs     string
		status     string
		unresolved int
	)
	query := "SELECT id, inputs, status, reason, unresolved, created_at FROM applications WHERE id = ?"
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&app.ID, &inputs, &status, &app.Reason, &unresolved, &app.CreatedAt)
	if err == sql.ErrNoRows {
		return core.Application{}, errors.WithFields(
			errors.New(errors.ResourceNotFound, "application not found"),
			errors.Fields{"application_id": id},
		)
	}
	if err != nil {
		return core.Application{}, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to retrieve application"),
			errors.Fields{"application_id": id},
		)
	}
	if err := json.Unmarshal([]byte(inputs), &app.Inputs); err != nil {
		return core.Application{}, errors.WithFields(
			errors.Wrap(err, errors.InvalidResponse, "failed to unmarshal application inputs"),
			errors.Fields{"application_id": id},
		)
	}
	app.Status = core.ApplicationStatus(status)
	app.Unresolved = unresolved != 0
	return app, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec core.StageRecord) error {
	if err := s.ensureInitialized(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to begin transaction")
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logging.GetLogger().Error(context.Background(), "failed to rollback transaction: %v", err)
		}
	}()

	query := `
    INSERT INTO stage_records (application_id, stage, revision, input_digest, payload, status, error, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, query,
		rec.ApplicationID, string(rec.Stage), rec.Revision, rec.InputDigest,
		string(rec.Payload), string(rec.Status), rec.Err, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.WithFields(
				errors.New(errors.DuplicateRecord, "stage record already exists"),
				errors.Fields{
					"application_id": rec.ApplicationID,
					"stage":          string(rec.Stage),
					"revision":       rec.Revision,
				},
			)
		}
		return errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to append stage record"),
			errors.Fields{"application_id": rec.ApplicationID, "stage": string(rec.Stage)},
		)
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to commit transaction")
	}
	return nil
}

func (s *SQLiteStore) Latest(ctx context.Context, applicationID string, stage core.StageName) (core.StageRecord, error) {
	if err := s.ensureInitialized(); err != nil {
		return core.StageRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
    SELECT application_id, stage, revision, input_digest, payload, status, error, created_at
    FROM stage_records
    WHERE application_id = ? AND stage = ?
    ORDER BY revision DESC
    LIMIT 1
    `
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, applicationID, string(stage)))
	if err == sql.ErrNoRows {
		return core.StageRecord{}, errors.WithFields(
			errors.New(errors.ResourceNotFound, "no record for stage"),
			errors.Fields{"application_id": applicationID, "stage": string(stage)},
		)
	}
	if err != nil {
		return core.StageRecord{}, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to retrieve stage record"),
			errors.Fields{"application_id": applicationID, "stage": string(stage)},
		)
	}
	return rec, nil
}

func (s *SQLiteStore) History(ctx context.Context, applicationID string) ([]core.StageRecord, error) {
	if err := s.ensureInitialized(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
    SELECT application_id, stage, revision, input_digest, payload, status, error, created_at
    FROM stage_records
    WHERE application_id = ?
    ORDER BY rowid
    `
	rows, err := s.db.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to query stage records")
	}
	defer rows.Close()

	var records []core.StageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan stage record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "error iterating stage records")
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to close database connection")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (core.StageRecord, error) {
	var (
		rec     core.StageRecord
		stage   string
		status  string
		payload string
	)
	err := row.Scan(&rec.ApplicationID, &stage, &rec.Revision, &rec.InputDigest,
		&payload, &status, &rec.Err, &rec.CreatedAt)
	if err != nil {
		return core.StageRecord{}, err
	}
	rec.Stage = core.StageName(stage)
	rec.Status = core.StageStatus(status)
	if payload != "" {
		rec.Payload = json.RawMessage(payload)
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !stderrors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
