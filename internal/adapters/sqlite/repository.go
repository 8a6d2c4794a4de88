package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/internal/domain"
	"tradejournal/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.FillRepository, ports.GroupRepository and
// ports.DailyPnLRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_journal.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the per-symbol sync goroutines.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist. Decimal columns are
// stored as TEXT so values round-trip exactly.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS fills (
		execution_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		fee TEXT NOT NULL,
		fee_asset TEXT NOT NULL DEFAULT '',
		executed_at TIMESTAMP NOT NULL,
		reported_pnl TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS position_groups (
		group_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL,
		opened_qty TEXT NOT NULL,
		closed_qty TEXT NOT NULL,
		avg_entry_price TEXT NOT NULL,
		avg_exit_price TEXT NOT NULL,
		fees TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		status TEXT NOT NULL,
		execution_ids TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_pnl (
		trade_date TEXT NOT NULL,
		symbol TEXT NOT NULL,
		group_count INTEGER NOT NULL,
		realized_pnl TEXT NOT NULL,
		fees TEXT NOT NULL,
		volume TEXT NOT NULL,
		PRIMARY KEY (trade_date, symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_fills_symbol_time ON fills (symbol, executed_at);
	CREATE INDEX IF NOT EXISTS idx_position_groups_symbol_status ON position_groups (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_position_groups_closed_at ON position_groups (closed_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- FillRepository Implementation ---

// UpsertFills persists a batch of fills, ignoring execution ids already
// stored. Fills are immutable facts, so conflicting rows are left untouched.
func (r *Repository) UpsertFills(ctx context.Context, fills []*domain.Fill) (int, error) {
	if len(fills) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin fill upsert transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	const query = `
	INSERT INTO fills (execution_id, symbol, side, quantity, price, fee, fee_asset, executed_at, reported_pnl)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(execution_id) DO NOTHING`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare fill upsert: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	inserted := 0
	for _, f := range fills {
		res, err := stmt.ExecContext(ctx,
			f.ExecutionID, f.Symbol, string(f.Side),
			f.Quantity.String(), f.Price.String(), f.Fee.String(), f.FeeAsset,
			f.Time.UTC(), f.ReportedPnL.String())
		if err != nil {
			return 0, fmt.Errorf("failed to upsert fill %s: %w: %w", f.ExecutionID, ports.ErrUpdateFailed, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected for fill %s: %w: %w", f.ExecutionID, ports.ErrUpdateFailed, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit fill upsert: %w: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Fills upserted", map[string]interface{}{"batch": len(fills), "inserted": inserted})
	return inserted, nil
}

// FindFills retrieves all stored fills for a symbol executed in [start, end),
// ordered by (time, execution id) for deterministic replay.
func (r *Repository) FindFills(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Fill, error) {
	const query = `
	SELECT execution_id, symbol, side, quantity, price, fee, fee_asset, executed_at, reported_pnl
	FROM fills
	WHERE symbol = ? AND executed_at >= ? AND executed_at < ?
	ORDER BY executed_at ASC, execution_id ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query fills for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	fills := make([]*domain.Fill, 0)
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fill during FindFills: %w: %w", ports.ErrQueryFailed, err)
		}
		fills = append(fills, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fill rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return fills, nil
}

// LatestFillTime returns the execution time of the most recent stored fill for
// a symbol, or the zero time if none exists.
func (r *Repository) LatestFillTime(ctx context.Context, symbol string) (time.Time, error) {
	const query = `SELECT executed_at FROM fills WHERE symbol = ? ORDER BY executed_at DESC LIMIT 1`
	var t time.Time
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to query latest fill time for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return t.UTC(), nil
}

// FillSymbols returns the distinct symbols present in the store, sorted.
func (r *Repository) FillSymbols(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT symbol FROM fills ORDER BY symbol ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query fill symbols: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan fill symbol: %w: %w", ports.ErrQueryFailed, err)
		}
		symbols = append(symbols, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fill symbol rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return symbols, nil
}

// --- GroupRepository Implementation ---

// UpsertGroup inserts a group or fully refreshes it by group id.
func (r *Repository) UpsertGroup(ctx context.Context, g *domain.PositionGroup) error {
	const query = `
	INSERT INTO position_groups (group_id, symbol, direction, opened_at, closed_at,
	                             opened_qty, closed_qty, avg_entry_price, avg_exit_price,
	                             fees, realized_pnl, status, execution_ids)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(group_id) DO UPDATE SET
		symbol = excluded.symbol,
		direction = excluded.direction,
		opened_at = excluded.opened_at,
		closed_at = excluded.closed_at,
		opened_qty = excluded.opened_qty,
		closed_qty = excluded.closed_qty,
		avg_entry_price = excluded.avg_entry_price,
		avg_exit_price = excluded.avg_exit_price,
		fees = excluded.fees,
		realized_pnl = excluded.realized_pnl,
		status = excluded.status,
		execution_ids = excluded.execution_ids`

	execIDs, err := json.Marshal(g.ExecutionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode execution ids for group %s: %w", g.GroupID, err)
	}
	var closedAt sql.NullTime
	if !g.ClosedAt.IsZero() {
		closedAt = sql.NullTime{Time: g.ClosedAt.UTC(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		g.GroupID, g.Symbol, string(g.Direction), g.OpenedAt.UTC(), closedAt,
		g.OpenedQty.String(), g.ClosedQty.String(), g.AvgEntryPrice.String(), g.AvgExitPrice.String(),
		g.Fees.String(), g.RealizedPnL.String(), string(g.Status), string(execIDs))
	if err != nil {
		return fmt.Errorf("failed to upsert position group %s: %w: %w", g.GroupID, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Position group upserted", map[string]interface{}{"groupID": g.GroupID, "status": g.Status})
	return nil
}

const groupColumns = `group_id, symbol, direction, opened_at, closed_at,
	opened_qty, closed_qty, avg_entry_price, avg_exit_price,
	fees, realized_pnl, status, execution_ids`

// FindGroupByID retrieves a group by its deterministic id.
func (r *Repository) FindGroupByID(ctx context.Context, groupID string) (*domain.PositionGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM position_groups WHERE group_id = ?`

	row := r.db.QueryRowContext(ctx, query, groupID)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position group %s: %w: %w", groupID, ports.ErrQueryFailed, err)
	}
	return g, nil
}

// FindGroups retrieves groups for a symbol opened in [start, end).
func (r *Repository) FindGroups(ctx context.Context, symbol string, start, end time.Time) ([]*domain.PositionGroup, error) {
	query := `SELECT ` + groupColumns + `
	FROM position_groups
	WHERE symbol = ? AND opened_at >= ? AND opened_at < ?
	ORDER BY opened_at ASC`

	return r.queryGroups(ctx, query, symbol, start.UTC(), end.UTC())
}

// FindClosedGroups retrieves closed groups across all symbols whose close time
// falls in [start, end).
func (r *Repository) FindClosedGroups(ctx context.Context, start, end time.Time) ([]*domain.PositionGroup, error) {
	query := `SELECT ` + groupColumns + `
	FROM position_groups
	WHERE status = ? AND closed_at >= ? AND closed_at < ?
	ORDER BY closed_at ASC`

	return r.queryGroups(ctx, query, string(domain.StatusClosed), start.UTC(), end.UTC())
}

// FindOpenGroup retrieves the currently open group for a symbol, if any.
func (r *Repository) FindOpenGroup(ctx context.Context, symbol string) (*domain.PositionGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM position_groups WHERE symbol = ? AND status = ?`

	row := r.db.QueryRowContext(ctx, query, symbol, string(domain.StatusOpen))
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open group for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	return g, nil
}

func (r *Repository) queryGroups(ctx context.Context, query string, args ...interface{}) ([]*domain.PositionGroup, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query position groups: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	groups := make([]*domain.PositionGroup, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position group: %w: %w", ports.ErrQueryFailed, err)
		}
		groups = append(groups, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position group rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return groups, nil
}

// --- DailyPnLRepository Implementation ---

// ReplaceDailyPnL atomically deletes all rows for days in [fromDay, toDay] and
// inserts the supplied rows.
func (r *Repository) ReplaceDailyPnL(ctx context.Context, fromDay, toDay string, dailyRows []*domain.DailyPnL) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin daily PnL transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM daily_pnl WHERE trade_date >= ? AND trade_date <= ?`, fromDay, toDay); err != nil {
		return fmt.Errorf("failed to delete daily PnL rows %s..%s: %w: %w", fromDay, toDay, ports.ErrUpdateFailed, err)
	}

	const insert = `
	INSERT INTO daily_pnl (trade_date, symbol, group_count, realized_pnl, fees, volume)
	VALUES (?, ?, ?, ?, ?, ?)`
	for _, row := range dailyRows {
		if _, err := tx.ExecContext(ctx, insert,
			row.Date, row.Symbol, row.GroupCount,
			row.RealizedPnL.String(), row.Fees.String(), row.Volume.String()); err != nil {
			return fmt.Errorf("failed to insert daily PnL row %s/%s: %w: %w", row.Date, row.Symbol, ports.ErrUpdateFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit daily PnL replacement: %w: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Daily PnL rows replaced", map[string]interface{}{
		"fromDay": fromDay, "toDay": toDay, "rows": len(dailyRows),
	})
	return nil
}

// FindDailyPnL retrieves rows for days in [fromDay, toDay].
func (r *Repository) FindDailyPnL(ctx context.Context, fromDay, toDay string) ([]*domain.DailyPnL, error) {
	const query = `
	SELECT trade_date, symbol, group_count, realized_pnl, fees, volume
	FROM daily_pnl
	WHERE trade_date >= ? AND trade_date <= ?
	ORDER BY trade_date ASC, symbol ASC`

	rows, err := r.db.QueryContext(ctx, query, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily PnL rows: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	result := make([]*domain.DailyPnL, 0)
	for rows.Next() {
		d := &domain.DailyPnL{}
		var pnl, fees, volume string
		if err := rows.Scan(&d.Date, &d.Symbol, &d.GroupCount, &pnl, &fees, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily PnL row: %w: %w", ports.ErrQueryFailed, err)
		}
		if d.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("failed to parse daily PnL value %q: %w", pnl, err)
		}
		if d.Fees, err = decimal.NewFromString(fees); err != nil {
			return nil, fmt.Errorf("failed to parse daily fee value %q: %w", fees, err)
		}
		if d.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("failed to parse daily volume value %q: %w", volume, err)
		}
		result = append(result, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily PnL rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return result, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanFill scans a row into a domain.Fill struct.
func scanFill(s scanner) (*domain.Fill, error) {
	f := &domain.Fill{}
	var side, qty, price, fee, reportedPnL string
	var executedAt time.Time
	err := s.Scan(&f.ExecutionID, &f.Symbol, &side, &qty, &price, &fee, &f.FeeAsset, &executedAt, &reportedPnL)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	f.Side = domain.OrderSide(side)
	f.Time = executedAt.UTC()
	if f.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("parsing quantity %q: %w", qty, err)
	}
	if f.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parsing price %q: %w", price, err)
	}
	if f.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parsing fee %q: %w", fee, err)
	}
	if f.ReportedPnL, err = decimal.NewFromString(reportedPnL); err != nil {
		return nil, fmt.Errorf("parsing reported PnL %q: %w", reportedPnL, err)
	}
	return f, nil
}

// scanGroup scans a row into a domain.PositionGroup struct.
func scanGroup(s scanner) (*domain.PositionGroup, error) {
	g := &domain.PositionGroup{}
	var direction, status, execIDs string
	var openedAt time.Time
	var closedAt sql.NullTime
	var openedQty, closedQty, avgEntry, avgExit, fees, pnl string
	err := s.Scan(&g.GroupID, &g.Symbol, &direction, &openedAt, &closedAt,
		&openedQty, &closedQty, &avgEntry, &avgExit, &fees, &pnl, &status, &execIDs)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	g.Direction = domain.Direction(direction)
	g.Status = domain.GroupStatus(status)
	g.OpenedAt = openedAt.UTC()
	if closedAt.Valid {
		g.ClosedAt = closedAt.Time.UTC()
	}
	if g.OpenedQty, err = decimal.NewFromString(openedQty); err != nil {
		return nil, fmt.Errorf("parsing opened qty %q: %w", openedQty, err)
	}
	if g.ClosedQty, err = decimal.NewFromString(closedQty); err != nil {
		return nil, fmt.Errorf("parsing closed qty %q: %w", closedQty, err)
	}
	if g.AvgEntryPrice, err = decimal.NewFromString(avgEntry); err != nil {
		return nil, fmt.Errorf("parsing avg entry price %q: %w", avgEntry, err)
	}
	if g.AvgExitPrice, err = decimal.NewFromString(avgExit); err != nil {
		return nil, fmt.Errorf("parsing avg exit price %q: %w", avgExit, err)
	}
	if g.Fees, err = decimal.NewFromString(fees); err != nil {
		return nil, fmt.Errorf("parsing fees %q: %w", fees, err)
	}
	if g.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
		return nil, fmt.Errorf("parsing realized PnL %q: %w", pnl, err)
	}
	if err := json.Unmarshal([]byte(execIDs), &g.ExecutionIDs); err != nil {
		return nil, fmt.Errorf("decoding execution ids for group %s: %w", g.GroupID, err)
	}
	return g, nil
}
