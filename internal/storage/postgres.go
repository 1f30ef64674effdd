package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

const uniqueViolation = "23505"

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) connString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// The database may still be starting next to the bot.
	err = retry.Do(
		func() error {
			return db.PingContext(ctx)
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Postgres not reachable yet, retrying",
				zap.Uint("attempt", n),
				zap.Error(err))
		}),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) AddWarning(ctx context.Context, userID string, w models.Warning) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO warnings (user_id, reason, issued_by, issued_at) VALUES ($1, $2, $3, $4)`,
		userID, w.Reason, w.IssuedBy, w.IssuedAt)
	if err != nil {
		return 0, fmt.Errorf("error inserting warning: %w", err)
	}

	count, err := countWarnings(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

func (s *PostgresStorage) ListWarnings(ctx context.Context, userID string) ([]models.Warning, error) {
	query := `
		SELECT reason, issued_by, issued_at
		FROM warnings
		WHERE user_id = $1
		ORDER BY issued_at, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying warnings: %w", err)
	}
	defer rows.Close()

	warns := []models.Warning{}
	for rows.Next() {
		var w models.Warning
		if err := rows.Scan(&w.Reason, &w.IssuedBy, &w.IssuedAt); err != nil {
			return nil, fmt.Errorf("error scanning warning: %w", err)
		}
		warns = append(warns, w)
	}
	return warns, rows.Err()
}

func (s *PostgresStorage) ClearWarnings(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM warnings WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("error clearing warnings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStorage) RemoveWarning(ctx context.Context, userID string, position int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	count, err := countWarnings(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if position < 1 || position > count {
		return count, ErrWarningNotFound
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM warnings
		WHERE user_id = $1
		ORDER BY issued_at, id
		OFFSET $2 LIMIT 1`, userID, position-1).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return count, ErrWarningNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("error locating warning: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM warnings WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("error deleting warning: %w", err)
	}
	return count - 1, tx.Commit()
}

func countWarnings(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM warnings WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting warnings: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) AddToBlacklist(ctx context.Context, entry models.BlacklistEntry) (bool, error) {
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO blacklist (user_id, added_by, reason, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		entry.UserID, entry.AddedBy, entry.Reason, entry.AddedAt)
	if err != nil {
		return false, fmt.Errorf("error adding to blacklist: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStorage) RemoveFromBlacklist(ctx context.Context, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blacklist WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("error removing from blacklist: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStorage) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklist WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking blacklist: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) CountBlacklisted(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blacklist`).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting blacklist: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) CreateAppeal(ctx context.Context, appeal *models.Appeal) error {
	answers, err := json.Marshal(appeal.Answers)
	if err != nil {
		return fmt.Errorf("error encoding appeal answers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO appeals (id, user_id, thread_id, answers, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		appeal.ID, appeal.UserID, appeal.ThreadID, answers, models.AppealPending, appeal.SubmittedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAppealPending
		}
		return fmt.Errorf("error creating appeal: %w", err)
	}
	appeal.Status = models.AppealPending
	return nil
}

const appealColumns = `id, user_id, thread_id, answers, status, submitted_at, resolved_at, resolved_by`

func (s *PostgresStorage) PendingAppeal(ctx context.Context, userID string) (*models.Appeal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+appealColumns+` FROM appeals WHERE user_id = $1 AND status = $2`,
		userID, models.AppealPending)
	return scanAppeal(row)
}

func (s *PostgresStorage) AppealByThread(ctx context.Context, threadID string) (*models.Appeal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+appealColumns+` FROM appeals WHERE thread_id = $1 ORDER BY submitted_at DESC LIMIT 1`,
		threadID)
	return scanAppeal(row)
}

func (s *PostgresStorage) ResolveAppeal(ctx context.Context, appealID string, status models.AppealStatus, resolvedBy string, at time.Time) (*models.Appeal, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE appeals
		SET status = $1, resolved_by = $2, resolved_at = $3
		WHERE id = $4 AND status = $5
		RETURNING `+appealColumns,
		status, resolvedBy, at, appealID, models.AppealPending)
	return scanAppeal(row)
}

func scanAppeal(row *sql.Row) (*models.Appeal, error) {
	var (
		a          models.Appeal
		answers    []byte
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	err := row.Scan(&a.ID, &a.UserID, &a.ThreadID, &answers, &a.Status, &a.SubmittedAt, &resolvedAt, &resolvedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAppealNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning appeal: %w", err)
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("error decoding appeal answers: %w", err)
	}
	a.ResolvedAt = resolvedAt.Time
	a.ResolvedBy = resolvedBy.String
	return &a, nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
