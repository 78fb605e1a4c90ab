package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

//go:embed schema.sql
var schemaSQL string

// SqliteStore backs all three store ports with a single SQLite file, used
// for local and single-node deployments. Compare-and-swap is a conditional
// UPDATE on the version column.
type SqliteStore struct {
	db     *sql.DB
	logger outbound.LoggerPort
}

func NewSqliteStore(path string, logger outbound.LoggerPort) (*SqliteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SqliteStore{db: db, logger: logger}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Jobs() outbound.JobStorePort {
	return &sqliteJobStore{store: s}
}

func (s *SqliteStore) Ledger() outbound.LedgerStorePort {
	return &sqliteLedgerStore{store: s}
}

func (s *SqliteStore) Batches() outbound.BatchStorePort {
	return &sqliteBatchStore{store: s}
}

type sqliteJobStore struct {
	store *SqliteStore
}

type jobRow struct {
	productJSON  sql.NullString
	configJSON   sql.NullString
	attemptsJSON string
	outputsJSON  string
	taskKind     string
	taskID       string
	startedAt    int64
	createdAt    int64
	completedAt  sql.NullInt64
}

func (s *sqliteJobStore) Create(ctx context.Context, job *domain.Job) error {
	job.Version = 1
	productJSON, configJSON, attemptsJSON, outputsJSON, err := encodeJob(job)
	if err != nil {
		return err
	}

	var completedAt interface{}
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.UnixNano()
	}
	taskKind, taskID := "", ""
	if job.CurrentTask != nil {
		taskKind, taskID = string(job.CurrentTask.Kind), job.CurrentTask.TaskID
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, user_id, stage, failed_step, link_url, description,
			product_json, config_json, attempts_json, outputs_json,
			variant_count, task_kind, task_id, stage_started_at,
			credits_charged, credits_refunded, primary_output_ref,
			error_message, created_at, completed_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, string(job.Stage), string(job.FailedStep),
		job.Input.LinkURL, job.Input.Description,
		productJSON, configJSON, attemptsJSON, outputsJSON,
		job.VariantCount, taskKind, taskID, startedAtNano(job),
		job.CreditsCharged, job.CreditsRefunded, job.PrimaryOutputRef,
		job.ErrorMessage, job.CreatedAt.UnixNano(), completedAt, job.Version)
	return err
}

func (s *sqliteJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.store.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

func (s *sqliteJobStore) Update(ctx context.Context, job *domain.Job) error {
	productJSON, configJSON, attemptsJSON, outputsJSON, err := encodeJob(job)
	if err != nil {
		return err
	}

	var completedAt interface{}
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.UnixNano()
	}
	taskKind, taskID := "", ""
	if job.CurrentTask != nil {
		taskKind, taskID = string(job.CurrentTask.Kind), job.CurrentTask.TaskID
	}

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE jobs SET
			stage = ?, failed_step = ?, product_json = ?, config_json = ?,
			attempts_json = ?, outputs_json = ?, variant_count = ?,
			task_kind = ?, task_id = ?, stage_started_at = ?,
			credits_charged = ?, credits_refunded = ?, primary_output_ref = ?,
			error_message = ?, completed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(job.Stage), string(job.FailedStep), productJSON, configJSON,
		attemptsJSON, outputsJSON, job.VariantCount,
		taskKind, taskID, startedAtNano(job),
		job.CreditsCharged, job.CreditsRefunded, job.PrimaryOutputRef,
		job.ErrorMessage, completedAt,
		job.ID, job.Version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrConcurrencyConflict
	}
	job.Version++
	return nil
}

func (s *sqliteJobStore) ListProcessingByUser(ctx context.Context, userID string) ([]*domain.Job, error) {
	rows, err := s.store.db.QueryContext(ctx,
		jobSelect+` WHERE user_id = ? AND stage IN (?, ?, ?) ORDER BY created_at`,
		userID,
		string(domain.StageGeneratingScript),
		string(domain.StageGeneratingReferenceImage),
		string(domain.StageGeneratingOutput))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *sqliteJobStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.store.db.QueryContext(ctx,
		jobSelect+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

const jobSelect = `
	SELECT id, user_id, stage, failed_step, link_url, description,
		product_json, config_json, attempts_json, outputs_json,
		variant_count, task_kind, task_id, stage_started_at,
		credits_charged, credits_refunded, primary_output_ref,
		error_message, created_at, completed_at, version
	FROM jobs`

func startedAtNano(job *domain.Job) int64 {
	if job.StageStartedAt.IsZero() {
		return 0
	}
	return job.StageStartedAt.UnixNano()
}

func encodeJob(job *domain.Job) (product interface{}, conf interface{}, attempts string, outputs string, err error) {
	if job.Product != nil {
		payload, marshalErr := json.Marshal(job.Product)
		if marshalErr != nil {
			return nil, nil, "", "", marshalErr
		}
		product = string(payload)
	}
	if job.Config != nil {
		payload, marshalErr := json.Marshal(job.Config)
		if marshalErr != nil {
			return nil, nil, "", "", marshalErr
		}
		conf = string(payload)
	}
	attemptsPayload, err := json.Marshal(job.AttemptCounters)
	if err != nil {
		return nil, nil, "", "", err
	}
	outputsPayload, err := json.Marshal(job.Outputs)
	if err != nil {
		return nil, nil, "", "", err
	}
	return product, conf, string(attemptsPayload), string(outputsPayload), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	job := &domain.Job{}
	var r jobRow
	var stage, failedStep string
	err := row.Scan(&job.ID, &job.UserID, &stage, &failedStep,
		&job.Input.LinkURL, &job.Input.Description,
		&r.productJSON, &r.configJSON, &r.attemptsJSON, &r.outputsJSON,
		&job.VariantCount, &r.taskKind, &r.taskID, &r.startedAt,
		&job.CreditsCharged, &job.CreditsRefunded, &job.PrimaryOutputRef,
		&job.ErrorMessage, &r.createdAt, &r.completedAt, &job.Version)
	if err != nil {
		return nil, err
	}

	job.Stage = domain.Stage(stage)
	job.FailedStep = domain.Step(failedStep)
	job.CreatedAt = time.Unix(0, r.createdAt).UTC()
	if r.startedAt != 0 {
		job.StageStartedAt = time.Unix(0, r.startedAt).UTC()
	}
	if r.completedAt.Valid {
		completed := time.Unix(0, r.completedAt.Int64).UTC()
		job.CompletedAt = &completed
	}
	if r.taskID != "" {
		job.CurrentTask = &domain.TaskHandle{
			Kind:   domain.ProviderKind(r.taskKind),
			TaskID: r.taskID,
		}
	}
	if r.productJSON.Valid {
		job.Product = &domain.ProductInfo{}
		if err := json.Unmarshal([]byte(r.productJSON.String), job.Product); err != nil {
			return nil, err
		}
	}
	if r.configJSON.Valid {
		job.Config = &domain.JobConfig{}
		if err := json.Unmarshal([]byte(r.configJSON.String), job.Config); err != nil {
			return nil, err
		}
	}
	job.AttemptCounters = make(map[domain.Step]int)
	if err := json.Unmarshal([]byte(r.attemptsJSON), &job.AttemptCounters); err != nil {
		return nil, err
	}
	job.Outputs = make(map[domain.Step][]domain.VersionedOutput)
	if err := json.Unmarshal([]byte(r.outputsJSON), &job.Outputs); err != nil {
		return nil, err
	}
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*domain.Job, error) {
	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type sqliteLedgerStore struct {
	store *SqliteStore
}

func (s *sqliteLedgerStore) Append(ctx context.Context, tx *domain.CreditTransaction) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO credit_transactions (
			id, user_id, amount, reason_code, reason_ref,
			balance_before, balance_after, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Amount, tx.ReasonCode, tx.ReasonRef,
		tx.BalanceBefore, tx.BalanceAfter, tx.CreatedAt.UnixNano())
	return err
}

func (s *sqliteLedgerStore) LatestBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.store.db.QueryRowContext(ctx, `
		SELECT balance_after FROM credit_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (s *sqliteLedgerStore) FindByReason(ctx context.Context, userID string, reasonRef string, charge bool) (*domain.CreditTransaction, error) {
	comparison := "amount > 0"
	if charge {
		comparison = "amount < 0"
	}
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, reason_code, reason_ref,
			balance_before, balance_after, created_at
		FROM credit_transactions
		WHERE user_id = ? AND reason_ref = ? AND `+comparison+`
		LIMIT 1`, userID, reasonRef)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tx, err
}

func (s *sqliteLedgerStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, user_id, amount, reason_code, reason_ref,
			balance_before, balance_after, created_at
		FROM credit_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]*domain.CreditTransaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row rowScanner) (*domain.CreditTransaction, error) {
	tx := &domain.CreditTransaction{}
	var createdAt int64
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.ReasonCode, &tx.ReasonRef,
		&tx.BalanceBefore, &tx.BalanceAfter, &createdAt)
	if err != nil {
		return nil, err
	}
	tx.CreatedAt = time.Unix(0, createdAt).UTC()
	return tx, nil
}

type sqliteBatchStore struct {
	store *SqliteStore
}

func (s *sqliteBatchStore) CreateVariant(ctx context.Context, variant *domain.BatchVariant) error {
	variant.Version = 1
	taskKind, taskID := "", ""
	if variant.Handle != nil {
		taskKind, taskID = string(variant.Handle.Kind), variant.Handle.TaskID
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO batch_variants (
			id, job_id, variant_index, attempt, task_kind, task_id,
			status, result_ref, archived_ref, error_message,
			created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		variant.ID, variant.JobID, variant.Index, variant.Attempt, taskKind, taskID,
		string(variant.Status), variant.ResultRef, variant.ArchivedRef, variant.ErrorMessage,
		variant.CreatedAt.UnixNano(), variant.UpdatedAt.UnixNano(), variant.Version)
	return err
}

func (s *sqliteBatchStore) GetVariant(ctx context.Context, id string) (*domain.BatchVariant, error) {
	row := s.store.db.QueryRowContext(ctx, variantSelect+` WHERE id = ?`, id)
	variant, err := scanVariant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVariantNotFound
	}
	return variant, err
}

func (s *sqliteBatchStore) UpdateVariant(ctx context.Context, variant *domain.BatchVariant) error {
	taskKind, taskID := "", ""
	if variant.Handle != nil {
		taskKind, taskID = string(variant.Handle.Kind), variant.Handle.TaskID
	}
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE batch_variants SET
			task_kind = ?, task_id = ?, status = ?, result_ref = ?,
			archived_ref = ?, error_message = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		taskKind, taskID, string(variant.Status), variant.ResultRef,
		variant.ArchivedRef, variant.ErrorMessage, variant.UpdatedAt.UnixNano(),
		variant.ID, variant.Version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrConcurrencyConflict
	}
	variant.Version++
	return nil
}

func (s *sqliteBatchStore) ListVariantsByJob(ctx context.Context, jobID string) ([]*domain.BatchVariant, error) {
	rows, err := s.store.db.QueryContext(ctx,
		variantSelect+` WHERE job_id = ? ORDER BY attempt, variant_index`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]*domain.BatchVariant, 0)
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, variant)
	}
	return variants, rows.Err()
}

const variantSelect = `
	SELECT id, job_id, variant_index, attempt, task_kind, task_id,
		status, result_ref, archived_ref, error_message,
		created_at, updated_at, version
	FROM batch_variants`

func scanVariant(row rowScanner) (*domain.BatchVariant, error) {
	variant := &domain.BatchVariant{}
	var taskKind, taskID, status string
	var createdAt, updatedAt int64
	err := row.Scan(&variant.ID, &variant.JobID, &variant.Index, &variant.Attempt,
		&taskKind, &taskID, &status, &variant.ResultRef, &variant.ArchivedRef,
		&variant.ErrorMessage, &createdAt, &updatedAt, &variant.Version)
	if err != nil {
		return nil, err
	}
	variant.Status = domain.VariantStatus(status)
	variant.CreatedAt = time.Unix(0, createdAt).UTC()
	variant.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if taskID != "" {
		variant.Handle = &domain.TaskHandle{
			Kind:   domain.ProviderKind(taskKind),
			TaskID: taskID,
		}
	}
	return variant, nil
}
