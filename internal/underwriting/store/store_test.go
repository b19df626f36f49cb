// internal/underwriting/store/store_test.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortgage-underwriting/internal/common/logger"
	"mortgage-underwriting/internal/underwriting/applicant"
	"mortgage-underwriting/internal/underwriting/casestate"
	"mortgage-underwriting/internal/underwriting/scoring"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func decidedState(caseID string) casestate.State {
	data := applicant.Record{"case_id": caseID, "credit_score": float64(700)}
	s := casestate.New(caseID, data, data, fixedNow)
	score := 42
	memo := "### DECISION: CONDITIONAL_APPROVAL"
	return s.Apply(casestate.Update{
		Stage:         casestate.StageDecision,
		RiskScore:     &score,
		FinalDecision: scoring.DecisionConditional,
		DecisionMemo:  &memo,
		Conditions:    []string{"Provide letter of explanation"},
		Reasons:       []string{},
	}, fixedNow)
}

// ==========================
// SafeCaseID
// ==========================

func TestSafeCaseID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "MTG-2025-001", want: "MTG-2025-001"},
		{name: "empty", in: "", want: "demo"},
		{name: "whitespace", in: "   ", want: "demo"},
		{name: "path traversal", in: "../../etc/passwd", want: ".._.._etc_passwd"},
		{name: "spaces collapse", in: "case  one/two", want: "case_one_two"},
		{name: "trimmed", in: "  abc  ", want: "abc"},
		{name: "truncated", in: strings.Repeat("a", 200), want: strings.Repeat("a", 120)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeCaseID(tt.in))
		})
	}
}

// ==========================
// FileStore
// ==========================

func TestFileStore_SaveAndGet(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(filepath.Join(dir, "cases"))
	require.NoError(t, err)

	s := decidedState("MTG/7")
	require.NoError(t, fs.Save(context.Background(), s))

	raw, err := os.ReadFile(filepath.Join(dir, "cases", "MTG_7.json"))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "CONDITIONAL_APPROVAL", doc["final_decision"])
	assert.Equal(t, float64(42), doc["risk_score"])
	assert.Contains(t, string(raw), "\n  \"case_id\"")

	got, err := fs.Get(context.Background(), "MTG/7")
	require.NoError(t, err)
	assert.Equal(t, s.CaseID, got.CaseID)
	assert.Equal(t, scoring.DecisionConditional, got.FinalDecision)
	require.NotNil(t, got.RiskScore)
	assert.Equal(t, 42, *got.RiskScore)
	assert.Equal(t, s.Conditions, got.Conditions)
	assert.True(t, got.IsCompleted(casestate.StageDecision))
}

func TestFileStore_Overwrites(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first := decidedState("same")
	require.NoError(t, fs.Save(ctx, first))

	second := first.Apply(casestate.Update{Stage: casestate.StageDecision, FinalDecision: scoring.DecisionDenied}, fixedNow)
	require.NoError(t, fs.Save(ctx, second))

	got, err := fs.Get(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, scoring.DecisionDenied, got.FinalDecision)

	entries, err := os.ReadDir(fs.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_NotFound(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))

	_, err = fs.Get(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCaseNotFound)
}

// ==========================
// PostgresStore
// ==========================

func TestPostgresStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO underwriting_cases`).
		WithArgs("pg-1", "CONDITIONAL_APPROVAL", int64(42), false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("case_decided", "underwriting_case", "pg-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPostgresStore(db, logger.NewTestLogger(t))
	require.NoError(t, store.Save(context.Background(), decidedState("pg-1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_UpsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO underwriting_cases`).
		WillReturnError(errors.New("connection reset"))

	store := NewPostgresStore(db, logger.NewNoOpLogger())
	err = store.Save(context.Background(), decidedState("pg-2"))

	assert.ErrorIs(t, err, ErrCasePersistFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_AuditFailureIsNotFatal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO underwriting_cases`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(errors.New("audit table missing"))

	store := NewPostgresStore(db, logger.NewNoOpLogger())
	assert.NoError(t, store.Save(context.Background(), decidedState("pg-3")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	want := decidedState("pg-4")
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT state FROM underwriting_cases`).
		WithArgs("pg-4").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(raw))

	got, err := NewPostgresStore(db, logger.NewNoOpLogger()).Get(context.Background(), "pg-4")
	require.NoError(t, err)
	assert.Equal(t, "pg-4", got.CaseID)
	assert.Equal(t, scoring.DecisionConditional, got.FinalDecision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT state FROM underwriting_cases`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	_, err = NewPostgresStore(db, logger.NewNoOpLogger()).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS underwriting_cases`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresStore(db, logger.NewNoOpLogger()).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
