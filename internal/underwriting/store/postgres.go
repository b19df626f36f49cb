// internal/underwriting/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/casestate"
)

const schema = `
CREATE TABLE IF NOT EXISTS underwriting_cases (
	case_id               TEXT PRIMARY KEY,
	final_decision        TEXT NOT NULL,
	risk_score            INTEGER,
	human_review_required BOOLEAN NOT NULL DEFAULT FALSE,
	state                 JSONB NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_log (
	id            BIGSERIAL PRIMARY KEY,
	event_type    TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	details       JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);`

// PostgresStore keeps decided cases in underwriting_cases and records an
// audit_log entry per save.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: log, now: time.Now}
}

// EnsureSchema creates the tables when they do not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: schema: %v", ErrCasePersistFailed, err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, s casestate.State) error {
	stateJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrCasePersistFailed, err)
	}

	var riskScore sql.NullInt64
	if s.RiskScore != nil {
		riskScore = sql.NullInt64{Int64: int64(*s.RiskScore), Valid: true}
	}
	now := p.now().UTC()

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO underwriting_cases (
			case_id, final_decision, risk_score, human_review_required, state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (case_id) DO UPDATE SET
			final_decision = EXCLUDED.final_decision,
			risk_score = EXCLUDED.risk_score,
			human_review_required = EXCLUDED.human_review_required,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		s.CaseID,
		string(s.FinalDecision),
		riskScore,
		s.HumanReviewRequired,
		stateJSON,
		now,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrCasePersistFailed, err)
	}

	// Audit entry is non-critical.
	details, _ := json.Marshal(map[string]interface{}{
		"finalDecision":       s.FinalDecision,
		"riskScore":           s.RiskScore,
		"humanReviewRequired": s.HumanReviewRequired,
	})
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"case_decided",
		"underwriting_case",
		s.CaseID,
		details,
		now,
	)
	if err != nil {
		p.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":  err,
			"caseId": s.CaseID,
		})
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, caseID string) (casestate.State, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT state FROM underwriting_cases WHERE case_id = $1`, caseID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return casestate.State{}, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	if err != nil {
		return casestate.State{}, fmt.Errorf("query case %s: %w", caseID, err)
	}

	var s casestate.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return casestate.State{}, fmt.Errorf("decode case %s: %w", caseID, err)
	}
	return s, nil
}
