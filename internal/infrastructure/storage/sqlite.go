package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/marginguard/marginguard/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS automations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			tier TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			config TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_automations_user ON automations(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_automations_user_account ON automations(user_id, account_id);`,
		`CREATE TABLE IF NOT EXISTS execution_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			automation_id TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			action_count INTEGER NOT NULL,
			errors TEXT,
			reason TEXT,
			ran_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_execution_logs_automation ON execution_logs(automation_id, ran_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AutomationRepository implementation

func (s *SQLiteStore) SaveAutomation(ctx context.Context, a *domain.Automation) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	query := `INSERT INTO automations (id, user_id, account_id, tier, is_active, config, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.AccountID, a.Tier.String(), a.IsActive, string(cfg), a.CreatedAt, a.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetAutomation(ctx context.Context, id string) (*domain.Automation, error) {
	query := `SELECT id, user_id, account_id, tier, is_active, config, created_at, updated_at
			  FROM automations WHERE id = ?`
	a, err := scanAutomation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) ListAutomations(ctx context.Context) ([]*domain.Automation, error) {
	query := `SELECT id, user_id, account_id, tier, is_active, config, created_at, updated_at FROM automations`
	return s.queryAutomations(ctx, query)
}

func (s *SQLiteStore) ListAutomationsByUser(ctx context.Context, userID string) ([]*domain.Automation, error) {
	query := `SELECT id, user_id, account_id, tier, is_active, config, created_at, updated_at
			  FROM automations WHERE user_id = ?`
	return s.queryAutomations(ctx, query, userID)
}

func (s *SQLiteStore) GetActiveByAccount(ctx context.Context, userID, accountID string) (*domain.Automation, error) {
	query := `SELECT id, user_id, account_id, tier, is_active, config, created_at, updated_at
			  FROM automations WHERE user_id = ? AND account_id = ? AND is_active = 1 LIMIT 1`
	a, err := scanAutomation(s.db.QueryRowContext(ctx, query, userID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) UpdateAutomation(ctx context.Context, a *domain.Automation) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	query := `UPDATE automations SET account_id = ?, tier = ?, is_active = ?, config = ?, updated_at = ?
			  WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		a.AccountID, a.Tier.String(), a.IsActive, string(cfg), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteAutomation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM automations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) queryAutomations(ctx context.Context, query string, args ...interface{}) ([]*domain.Automation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var automations []*domain.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, a)
	}
	return automations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAutomation(row rowScanner) (*domain.Automation, error) {
	var a domain.Automation
	var tierName, cfg string
	if err := row.Scan(&a.ID, &a.UserID, &a.AccountID, &tierName, &a.IsActive, &cfg, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	tier, ok := domain.ParseTier(tierName)
	if !ok {
		return nil, fmt.Errorf("automation %s: unknown tier %q", a.ID, tierName)
	}
	a.Tier = tier
	if err := json.Unmarshal([]byte(cfg), &a.Config); err != nil {
		return nil, fmt.Errorf("automation %s: unmarshal config: %w", a.ID, err)
	}
	return &a, nil
}

// ExecutionLogRepository implementation

func (s *SQLiteStore) SaveExecutionLog(ctx context.Context, entry *domain.ExecutionLogEntry) error {
	query := `INSERT INTO execution_logs (automation_id, success, action_count, errors, reason, ran_at)
			  VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		entry.AutomationID, entry.Success, entry.ActionCount,
		strings.Join(entry.Errors, "\n"), entry.Reason, entry.RanAt)
	if err != nil {
		return err
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListExecutionLogs(ctx context.Context, automationID string, limit int) ([]*domain.ExecutionLogEntry, error) {
	query := `SELECT id, automation_id, success, action_count, errors, reason, ran_at
			  FROM execution_logs WHERE automation_id = ? ORDER BY ran_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, automationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ExecutionLogEntry
	for rows.Next() {
		var e domain.ExecutionLogEntry
		var errsJoined string
		if err := rows.Scan(&e.ID, &e.AutomationID, &e.Success, &e.ActionCount, &errsJoined, &e.Reason, &e.RanAt); err != nil {
			return nil, err
		}
		if errsJoined != "" {
			e.Errors = strings.Split(errsJoined, "\n")
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
