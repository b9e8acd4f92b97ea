// Package store is the Event Store (C1): the single persistent source of
// truth for in-flight pending actions and approved GMP calls. Every other
// component interacts with the database exclusively through this narrow
// surface (spec §4.1) — no component keeps authoritative in-memory state.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrPendingActionNotFound is returned when a nonce has no row.
	ErrPendingActionNotFound = errors.New("store: pending action not found")
	// ErrAxelarCallNotFound is returned when a payload hash has no row.
	ErrAxelarCallNotFound = errors.New("store: axelar call contract event not found")
)

// Client wraps a pooled Postgres connection and exposes the Event Store's
// query/mutation surface.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient opens a connection pool against cfg.Database and verifies it is
// reachable.
func NewClient(cfg *config.Database, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.PgURL == "" {
		return nil, fmt.Errorf("database pg_url cannot be empty")
	}

	client := &Client{
		logger: log.New(log.Writer(), "[Store] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(client)
	}

	db, err := sql.Open("postgres", cfg.PgURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	client.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client.logger.Printf("connected to event store (max_conns=%d, min_conns=%d)", cfg.MaxConns, cfg.MinConns)
	return client, nil
}

// Close closes the underlying pool.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ============================================================================
// MIGRATIONS
// ============================================================================

type migration struct {
	version string
	sql     string
}

// MigrateUp applies every embedded migration not yet recorded in
// schema_migrations, in version order, each inside its own transaction.
func (c *Client) MigrateUp(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := c.appliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("failed to list applied migrations: %w", err)
		}
		applied = map[string]bool{}
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		c.logger.Printf("applying migration %s", m.version)
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.version, err)
		}
	}
	return nil
}

func loadMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		version := strings.TrimSuffix(d.Name(), ".sql")
		out = append(out, migration{version: version, sql: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (c *Client) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// ============================================================================
// PENDING ACTIONS
// ============================================================================

// InsertPendingAction is idempotent on nonce: a conflicting insert is a
// silent no-op (spec §4.1).
func (c *Client) InsertPendingAction(ctx context.Context, row PendingAction) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pending_action_events
			(connection_id, bridge_id, chain_id, nonce, pending_action_type, retry_count,
			 fee_receiver_address, fee_sender_address, fee_amount, fee_denom,
			 created_at, expiry_block_time, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (nonce) DO NOTHING`,
		row.ConnectionID, row.BridgeID, row.ChainID, row.Nonce, row.PendingActionType, row.RetryCount,
		row.RelayDetails.FeeReceiverAddress, row.RelayDetails.FeeSenderAddress,
		row.RelayDetails.FeeAmount, row.RelayDetails.FeeDenom,
		row.RelayDetails.CreatedAt, row.RelayDetails.ExpiryBlockTime, row.RelayDetails.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending action (nonce=%d): %w", row.Nonce, err)
	}
	return nil
}

// DeletePendingActions bulk-removes rows by nonce using a parameterised
// ANY($1) array comparison, never string-concatenated SQL.
func (c *Client) DeletePendingActions(ctx context.Context, nonces []int64) error {
	if len(nonces) == 0 {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM pending_action_events WHERE nonce = ANY($1)`, pq.Array(nonces))
	if err != nil {
		return fmt.Errorf("failed to delete pending actions: %w", err)
	}
	return nil
}

// BumpRetry atomically increments retry_count for nonce.
func (c *Client) BumpRetry(ctx context.Context, nonce int64) error {
	_, err := c.db.ExecContext(ctx, `UPDATE pending_action_events SET retry_count = retry_count + 1 WHERE nonce = $1`, nonce)
	if err != nil {
		return fmt.Errorf("failed to bump retry count (nonce=%d): %w", nonce, err)
	}
	return nil
}

// ListRetriable selects rows eligible for another start-relay attempt.
func (c *Client) ListRetriable(ctx context.Context, maxRetries int, now time.Time) ([]PendingAction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, connection_id, bridge_id, chain_id, nonce, pending_action_type, retry_count,
		       fee_receiver_address, fee_sender_address, fee_amount, fee_denom,
		       created_at, expiry_block_time, sent_at
		FROM pending_action_events
		WHERE retry_count < $1 AND expiry_block_time > $2`, maxRetries, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list retriable pending actions: %w", err)
	}
	defer rows.Close()
	return scanPendingActions(rows)
}

// ListExpired selects rows whose expiry_block_time has passed (inclusive).
func (c *Client) ListExpired(ctx context.Context, now time.Time) ([]PendingAction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, connection_id, bridge_id, chain_id, nonce, pending_action_type, retry_count,
		       fee_receiver_address, fee_sender_address, fee_amount, fee_denom,
		       created_at, expiry_block_time, sent_at
		FROM pending_action_events
		WHERE expiry_block_time <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired pending actions: %w", err)
	}
	defer rows.Close()
	return scanPendingActions(rows)
}

// LookupPendingActionByNonce returns ErrPendingActionNotFound if absent.
func (c *Client) LookupPendingActionByNonce(ctx context.Context, nonce int64) (PendingAction, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, connection_id, bridge_id, chain_id, nonce, pending_action_type, retry_count,
		       fee_receiver_address, fee_sender_address, fee_amount, fee_denom,
		       created_at, expiry_block_time, sent_at
		FROM pending_action_events WHERE nonce = $1`, nonce)
	pa, err := scanPendingAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingAction{}, ErrPendingActionNotFound
	}
	if err != nil {
		return PendingAction{}, fmt.Errorf("failed to look up pending action (nonce=%d): %w", nonce, err)
	}
	return pa, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingAction(row rowScanner) (PendingAction, error) {
	var pa PendingAction
	var sentAt sql.NullTime
	err := row.Scan(
		&pa.ID, &pa.ConnectionID, &pa.BridgeID, &pa.ChainID, &pa.Nonce, &pa.PendingActionType, &pa.RetryCount,
		&pa.RelayDetails.FeeReceiverAddress, &pa.RelayDetails.FeeSenderAddress,
		&pa.RelayDetails.FeeAmount, &pa.RelayDetails.FeeDenom,
		&pa.RelayDetails.CreatedAt, &pa.RelayDetails.ExpiryBlockTime, &sentAt,
	)
	if err != nil {
		return PendingAction{}, err
	}
	if sentAt.Valid {
		pa.RelayDetails.SentAt = &sentAt.Time
	}
	return pa, nil
}

func scanPendingActions(rows *sql.Rows) ([]PendingAction, error) {
	var out []PendingAction
	for rows.Next() {
		pa, err := scanPendingAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pa)
	}
	return out, rows.Err()
}

// ============================================================================
// AXELAR CALL CONTRACT EVENTS
// ============================================================================

// InsertAxelarCall is idempotent on payload_hash.
func (c *Client) InsertAxelarCall(ctx context.Context, row AxelarCallContract) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO axelar_call_contract_events (nonce, payload_hash, payload, payload_encoding)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (payload_hash) DO NOTHING`,
		row.Nonce, row.PayloadHash, row.Payload, row.PayloadEncoding,
	)
	if err != nil {
		return fmt.Errorf("failed to insert axelar call contract event (payload_hash=%s): %w", row.PayloadHash, err)
	}
	return nil
}

// LookupAxelarCallByHash returns ErrAxelarCallNotFound if absent.
func (c *Client) LookupAxelarCallByHash(ctx context.Context, payloadHash string) (AxelarCallContract, error) {
	var row AxelarCallContract
	err := c.db.QueryRowContext(ctx, `
		SELECT id, nonce, payload_hash, payload, payload_encoding
		FROM axelar_call_contract_events WHERE payload_hash = $1`, payloadHash,
	).Scan(&row.ID, &row.Nonce, &row.PayloadHash, &row.Payload, &row.PayloadEncoding)
	if errors.Is(err, sql.ErrNoRows) {
		return AxelarCallContract{}, ErrAxelarCallNotFound
	}
	if err != nil {
		return AxelarCallContract{}, fmt.Errorf("failed to look up axelar call contract event: %w", err)
	}
	return row, nil
}

// ============================================================================
// APPROVED CALLS
// ============================================================================

// InsertApprovedCall is idempotent on (blockchain, command_id); it always
// inserts with status pending_broadcast (spec §3).
func (c *Client) InsertApprovedCall(ctx context.Context, row ApprovedCall) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO contract_call_approved_events
			(blockchain, broadcast_status, command_id, source_chain, source_address,
			 contract_address, payload_hash, source_tx_hash, source_event_index, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (blockchain, command_id) DO NOTHING`,
		row.Blockchain, BroadcastPending, row.CommandID, row.SourceChain, row.SourceAddress,
		row.ContractAddress, row.PayloadHash, row.SourceTxHash, row.SourceEventIndex, row.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approved call (command_id=%s): %w", row.CommandID, err)
	}
	return nil
}

// ListApprovedPending selects rows still awaiting broadcast.
func (c *Client) ListApprovedPending(ctx context.Context) ([]ApprovedCall, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, blockchain, broadcast_status, command_id, source_chain, source_address,
		       contract_address, payload_hash, source_tx_hash, source_event_index, payload
		FROM contract_call_approved_events WHERE broadcast_status = $1`, BroadcastPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approved calls: %w", err)
	}
	defer rows.Close()

	var out []ApprovedCall
	for rows.Next() {
		var row ApprovedCall
		if err := rows.Scan(&row.ID, &row.Blockchain, &row.BroadcastStatus, &row.CommandID,
			&row.SourceChain, &row.SourceAddress, &row.ContractAddress, &row.PayloadHash,
			&row.SourceTxHash, &row.SourceEventIndex, &row.Payload); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SetApprovedStatus transitions the row to newStatus only if its current
// status still matches expectedCurrent, returning ok=false otherwise (the
// compare-and-swap guard against Testable Property #11's race).
func (c *Client) SetApprovedStatus(ctx context.Context, id int64, expectedCurrent, newStatus BroadcastStatus) (ok bool, err error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE contract_call_approved_events SET broadcast_status = $1
		WHERE id = $2 AND broadcast_status = $3`, newStatus, id, expectedCurrent)
	if err != nil {
		return false, fmt.Errorf("failed to transition approved call status (id=%d): %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
