package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNumericOutOfRange   = "22003"
)

// Postgres is the pgxpool-backed Store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgres opens a pool for connString and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string, maxConns int32, logger *zap.Logger) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// CreateUser inserts a user with a zero balance.
func (s *Postgres) CreateUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO users (username, password_hash, balance) VALUES ($1, $2, 0)",
		username, passwordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: user %q already exists", domain.ErrConflict, username)
		}
		return storageErr("user insert failed", err)
	}
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return getUser(ctx, s.pool, username, "")
}

func (s *Postgres) CreateRequest(ctx context.Context, req domain.Request) (*domain.Request, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO requests (kind, username, amount, status, reference_id)
		 VALUES ($1, $2, $3::numeric, 'pending', $4)
		 RETURNING `+requestColumns,
		string(req.Kind), req.Username, req.Amount.String(), req.ReferenceID,
	)
	created, err := scanRequest(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgForeignKeyViolation:
				return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, req.Username)
			case pgNumericOutOfRange:
				return nil, fmt.Errorf("%w: amount exceeds %s", domain.ErrValidation, domain.MaxAmount)
			}
		}
		return nil, storageErr("request insert failed", err)
	}
	return created, nil
}

func (s *Postgres) GetRequest(ctx context.Context, id int64) (*domain.Request, error) {
	return getRequest(ctx, s.pool, id, "")
}

// ListRequests builds its WHERE clause from the non-empty filter fields.
func (s *Postgres) ListRequests(ctx context.Context, f domain.RequestFilter) ([]domain.Request, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.Username != "" {
		add("username", f.Username)
	}
	if f.Kind != "" {
		add("kind", string(f.Kind))
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}

	query := "SELECT " + requestColumns + " FROM requests"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.OldestFirst {
		query += " ORDER BY request_date ASC, id ASC"
	} else {
		query += " ORDER BY request_date DESC, id DESC"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("request query failed", err)
	}
	defer rows.Close()

	requests := []domain.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, storageErr("request scan failed", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("request rows failed", err)
	}
	return requests, nil
}

// ListTransactions returns the newest limit ledger records for username.
func (s *Postgres) ListTransactions(ctx context.Context, username string, limit int) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, kind, amount::text, created_at
		 FROM transactions WHERE username = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		username, limit,
	)
	if err != nil {
		return nil, storageErr("transaction query failed", err)
	}
	defer rows.Close()

	records := []domain.TransactionRecord{}
	for rows.Next() {
		var (
			rec    domain.TransactionRecord
			amount string
		)
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Kind, &amount, &rec.Timestamp); err != nil {
			return nil, storageErr("transaction scan failed", err)
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, storageErr("transaction amount decode failed", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("transaction rows failed", err)
	}
	return records, nil
}

// InTx runs fn in a READ COMMITTED transaction. Row locks taken by the Tx
// methods make a concurrent finalizer wait and then observe the committed status.
func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storageErr("tx begin failed", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("tx rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("tx commit failed", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockRequest(ctx context.Context, id int64) (*domain.Request, error) {
	return getRequest(ctx, t.tx, id, " FOR UPDATE")
}

func (t *pgTx) LockUser(ctx context.Context, username string) (*domain.User, error) {
	return getUser(ctx, t.tx, username, " FOR UPDATE")
}

// FinalizeRequest is conditional on the row still being pending, so a
// concurrent finalizer can never overwrite a terminal status.
func (t *pgTx) FinalizeRequest(ctx context.Context, id int64, status domain.RequestStatus, adminNotes string) (*domain.Request, error) {
	row := t.tx.QueryRow(ctx,
		`UPDATE requests SET status = $1, admin_notes = $2, processed_at = clock_timestamp()
		 WHERE id = $3 AND status = 'pending'
		 RETURNING `+requestColumns,
		string(status), adminNotes, id,
	)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %d", domain.ErrAlreadyProcessed, id)
	}
	if err != nil {
		return nil, storageErr("request update failed", err)
	}
	return req, nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := t.tx.QueryRow(ctx,
		"UPDATE users SET balance = balance + $1::numeric WHERE username = $2 RETURNING balance::text",
		delta.String(), username,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgCheckViolation:
				return decimal.Zero, fmt.Errorf("%w: balance would go negative", domain.ErrInsufficientFunds)
			case pgNumericOutOfRange:
				return decimal.Zero, fmt.Errorf("%w: balance would exceed %s", domain.ErrValidation, domain.MaxAmount)
			}
		}
		return decimal.Zero, storageErr("balance update failed", err)
	}
	newBalance, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, storageErr("balance decode failed", err)
	}
	return newBalance, nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, rec domain.TransactionRecord) (*domain.TransactionRecord, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions (username, kind, amount) VALUES ($1, $2, $3::numeric)
		 RETURNING id, created_at`,
		rec.Username, string(rec.Kind), rec.Amount.String(),
	).Scan(&rec.ID, &rec.Timestamp)
	if err != nil {
		return nil, storageErr("ledger insert failed", err)
	}
	return &rec, nil
}

const requestColumns = `id, kind, username, amount::text, request_date, status, admin_notes, reference_id, processed_at`

func getRequest(ctx context.Context, q querier, id int64, suffix string) (*domain.Request, error) {
	row := q.QueryRow(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = $1"+suffix, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("request lookup failed", err)
	}
	return req, nil
}

func getUser(ctx context.Context, q querier, username, suffix string) (*domain.User, error) {
	var (
		u       domain.User
		balance string
	)
	err := q.QueryRow(ctx,
		"SELECT username, password_hash, balance::text, created_at FROM users WHERE username = $1"+suffix,
		username,
	).Scan(&u.Username, &u.PasswordHash, &balance, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
	}
	if err != nil {
		return nil, storageErr("user lookup failed", err)
	}
	if u.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, storageErr("balance decode failed", err)
	}
	return &u, nil
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var (
		req         domain.Request
		amount      string
		processedAt *time.Time
	)
	err := row.Scan(&req.ID, &req.Kind, &req.Username, &amount, &req.RequestDate,
		&req.Status, &req.AdminNotes, &req.ReferenceID, &processedAt)
	if err != nil {
		return nil, err
	}
	if req.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	req.ProcessedAt = processedAt
	return &req, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
