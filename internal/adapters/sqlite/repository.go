package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"coinledger/internal/domain"
	"coinledger/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries need, so the
// same CRUD code serves both the plain repository and a transaction view.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository implements ports.TradeStore and ports.PortfolioRepository using SQLite.
type Repository struct {
	tradeQueries
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (and if needed creates) the database and its schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/coinledger.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
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

	// SQLite handles concurrency internally; the Go driver benefits from
	// a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{
		tradeQueries: tradeQueries{q: db, logger: cfg.Logger},
		db:           db,
		logger:       cfg.Logger,
	}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		total_deposit REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS portfolio_coins (
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		symbol TEXT NOT NULL,
		percentage REAL NOT NULL,
		decimal_places INTEGER NOT NULL,
		PRIMARY KEY (portfolio_id, symbol)
	);

	CREATE TABLE IF NOT EXISTS portfolio_initial_coins (
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		symbol TEXT NOT NULL,
		amount REAL NOT NULL,
		PRIMARY KEY (portfolio_id, symbol)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		coin_symbol TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		entry_price REAL NOT NULL,
		entry_fee REAL NOT NULL DEFAULT 0,
		sum_plus_fee REAL NOT NULL,
		amount REAL NOT NULL,
		deposit_percent REAL NOT NULL DEFAULT 0,
		exit_price REAL DEFAULT NULL,
		exit_fee REAL DEFAULT NULL,
		open_date TIMESTAMP NOT NULL,
		filled_date TIMESTAMP DEFAULT NULL,
		close_date TIMESTAMP DEFAULT NULL,
		initial_entry_price REAL NOT NULL,
		initial_amount REAL NOT NULL,
		original_amount REAL NOT NULL,
		remaining_amount REAL NOT NULL,
		is_partial_close INTEGER NOT NULL DEFAULT 0,
		closed_amount REAL NOT NULL DEFAULT 0,
		parent_trade_id TEXT DEFAULT NULL,
		reserved_sum_plus_fee REAL NOT NULL DEFAULT 0,
		is_split INTEGER NOT NULL DEFAULT 0,
		split_from_trade_id TEXT DEFAULT NULL,
		split_group_id TEXT DEFAULT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_portfolio_open_date ON trades (portfolio_id, open_date);
	CREATE INDEX IF NOT EXISTS idx_trades_parent ON trades (parent_trade_id);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
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

// Transact runs fn against a transaction-backed repository view. Any
// error from fn rolls the whole write set back.
func (r *Repository) Transact(ctx context.Context, fn func(repo ports.TradeRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	view := &tradeQueries{q: tx, logger: r.logger}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error(ctx, rbErr, "Transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- TradeRepository implementation ---

// tradeQueries implements ports.TradeRepository over a *sql.DB or *sql.Tx.
type tradeQueries struct {
	q      dbtx
	logger ports.Logger
}

const tradeColumns = `id, portfolio_id, coin_symbol, type, status,
	entry_price, entry_fee, sum_plus_fee, amount, deposit_percent,
	COALESCE(exit_price, 0), COALESCE(exit_fee, 0),
	open_date, filled_date, close_date,
	initial_entry_price, initial_amount, original_amount, remaining_amount,
	is_partial_close, closed_amount, COALESCE(parent_trade_id, ''),
	reserved_sum_plus_fee, is_split, COALESCE(split_from_trade_id, ''), COALESCE(split_group_id, '')`

func (t *tradeQueries) Insert(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, portfolio_id, coin_symbol, type, status,
		entry_price, entry_fee, sum_plus_fee, amount, deposit_percent,
		exit_price, exit_fee, open_date, filled_date, close_date,
		initial_entry_price, initial_amount, original_amount, remaining_amount,
		is_partial_close, closed_amount, parent_trade_id,
		reserved_sum_plus_fee, is_split, split_from_trade_id, split_group_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.q.ExecContext(ctx, query, insertArgs(trade)...)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("trade %s already exists: %w", trade.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert trade %s: %w", trade.ID, err)
	}
	t.logger.Debug(ctx, "Trade inserted", map[string]interface{}{"tradeID": trade.ID, "symbol": trade.CoinSymbol})
	return nil
}

func (t *tradeQueries) Update(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET portfolio_id = ?, coin_symbol = ?, type = ?, status = ?,
		entry_price = ?, entry_fee = ?, sum_plus_fee = ?, amount = ?, deposit_percent = ?,
		exit_price = ?, exit_fee = ?, open_date = ?, filled_date = ?, close_date = ?,
		initial_entry_price = ?, initial_amount = ?, original_amount = ?, remaining_amount = ?,
		is_partial_close = ?, closed_amount = ?, parent_trade_id = ?,
		reserved_sum_plus_fee = ?, is_split = ?, split_from_trade_id = ?, split_group_id = ?
	WHERE id = ?`

	args := append(insertArgs(trade)[1:], trade.ID)
	result, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update trade %s: %w: %w", trade.ID, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade %s: %w", trade.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %s not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	t.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": trade.ID, "status": trade.Status})
	return nil
}

func (t *tradeQueries) Delete(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM trades WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trade %s: %w: %w", id, ports.ErrDeleteFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete of trade %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %s not found for delete: %w", id, ports.ErrNotFound)
	}
	t.logger.Debug(ctx, "Trade deleted", map[string]interface{}{"tradeID": id})
	return nil
}

func (t *tradeQueries) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = ?`
	row := t.q.QueryRowContext(ctx, query, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query trade %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return trade, nil
}

func (t *tradeQueries) FindByPortfolio(ctx context.Context, portfolioID string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE portfolio_id = ? ORDER BY open_date ASC`
	rows, err := t.q.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades of portfolio %s: %w: %w", portfolioID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (t *tradeQueries) FindByParent(ctx context.Context, parentID string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE parent_trade_id = ? ORDER BY open_date ASC`
	rows, err := t.q.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query child trades of %s: %w: %w", parentID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// --- PortfolioRepository implementation ---

// PortfolioRepo exposes the portfolio tables under the
// ports.PortfolioRepository method set; those method names are taken by
// the trade side on Repository itself.
type PortfolioRepo struct {
	r *Repository
}

// Portfolios returns the ports.PortfolioRepository view of the store.
func (r *Repository) Portfolios() *PortfolioRepo {
	return &PortfolioRepo{r: r}
}

func (p *PortfolioRepo) FindByID(ctx context.Context, id string) (*domain.Portfolio, error) {
	return p.r.findPortfolioByID(ctx, id)
}

func (p *PortfolioRepo) Insert(ctx context.Context, portfolio *domain.Portfolio) error {
	return p.r.insertPortfolio(ctx, portfolio)
}

func (p *PortfolioRepo) Update(ctx context.Context, portfolio *domain.Portfolio) error {
	return p.r.updatePortfolio(ctx, portfolio)
}

func (p *PortfolioRepo) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Portfolio, error) {
	return p.r.findPortfoliosByOwner(ctx, ownerID)
}

func (r *Repository) findPortfolioByID(ctx context.Context, id string) (*domain.Portfolio, error) {
	const query = `SELECT id, owner_id, name, total_deposit FROM portfolios WHERE id = ?`
	p := &domain.Portfolio{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.TotalDeposit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query portfolio %s: %w", id, err)
	}
	if err := r.loadPortfolioCoins(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) insertPortfolio(ctx context.Context, p *domain.Portfolio) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO portfolios (id, owner_id, name, total_deposit) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, p.ID, p.OwnerID, p.Name, p.TotalDeposit); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("portfolio %s already exists: %w", p.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert portfolio %s: %w", p.ID, err)
	}
	if err := writePortfolioCoins(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit portfolio insert: %w", err)
	}
	r.logger.Debug(ctx, "Portfolio inserted", map[string]interface{}{"portfolioID": p.ID})
	return nil
}

func (r *Repository) updatePortfolio(ctx context.Context, p *domain.Portfolio) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE portfolios SET owner_id = ?, name = ?, total_deposit = ? WHERE id = ?`
	result, err := tx.ExecContext(ctx, query, p.OwnerID, p.Name, p.TotalDeposit, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %s: %w", p.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for portfolio %s: %w", p.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("portfolio %s not found for update: %w", p.ID, ports.ErrNotFound)
	}

	// Coin allocations are replaced wholesale.
	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_coins WHERE portfolio_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear coins of portfolio %s: %w", p.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_initial_coins WHERE portfolio_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear initial coins of portfolio %s: %w", p.ID, err)
	}
	if err := writePortfolioCoins(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit portfolio update: %w", err)
	}
	r.logger.Debug(ctx, "Portfolio updated", map[string]interface{}{"portfolioID": p.ID})
	return nil
}

func (r *Repository) findPortfoliosByOwner(ctx context.Context, ownerID string) ([]*domain.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, owner_id, name, total_deposit FROM portfolios WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios of owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	portfolios := make([]*domain.Portfolio, 0)
	for rows.Next() {
		p := &domain.Portfolio{}
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.TotalDeposit); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio row: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio rows: %w", err)
	}
	for _, p := range portfolios {
		if err := r.loadPortfolioCoins(ctx, p); err != nil {
			return nil, err
		}
	}
	return portfolios, nil
}

func (r *Repository) loadPortfolioCoins(ctx context.Context, p *domain.Portfolio) error {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, percentage, decimal_places FROM portfolio_coins WHERE portfolio_id = ? ORDER BY symbol`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query coins of portfolio %s: %w", p.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Coin
		if err := rows.Scan(&c.Symbol, &c.Percentage, &c.DecimalPlaces); err != nil {
			return fmt.Errorf("failed to scan coin row: %w", err)
		}
		p.Coins = append(p.Coins, c)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating coin rows: %w", err)
	}

	initRows, err := r.db.QueryContext(ctx, `SELECT symbol, amount FROM portfolio_initial_coins WHERE portfolio_id = ? ORDER BY symbol`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to query initial coins of portfolio %s: %w", p.ID, err)
	}
	defer initRows.Close()
	for initRows.Next() {
		var ic domain.InitialCoin
		if err := initRows.Scan(&ic.Symbol, &ic.Amount); err != nil {
			return fmt.Errorf("failed to scan initial coin row: %w", err)
		}
		p.InitialCoins = append(p.InitialCoins, ic)
	}
	if err = initRows.Err(); err != nil {
		return fmt.Errorf("error iterating initial coin rows: %w", err)
	}
	return nil
}

func writePortfolioCoins(ctx context.Context, tx *sql.Tx, p *domain.Portfolio) error {
	for _, c := range p.Coins {
		_, err := tx.ExecContext(ctx, `INSERT INTO portfolio_coins (portfolio_id, symbol, percentage, decimal_places) VALUES (?, ?, ?, ?)`,
			p.ID, c.Symbol, c.Percentage, c.DecimalPlaces)
		if err != nil {
			return fmt.Errorf("failed to insert coin %s of portfolio %s: %w", c.Symbol, p.ID, err)
		}
	}
	for _, ic := range p.InitialCoins {
		_, err := tx.ExecContext(ctx, `INSERT INTO portfolio_initial_coins (portfolio_id, symbol, amount) VALUES (?, ?, ?)`,
			p.ID, ic.Symbol, ic.Amount)
		if err != nil {
			return fmt.Errorf("failed to insert initial coin %s of portfolio %s: %w", ic.Symbol, p.ID, err)
		}
	}
	return nil
}

// --- Helper scan functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func insertArgs(t *domain.Trade) []interface{} {
	return []interface{}{
		t.ID, t.PortfolioID, t.CoinSymbol, string(t.Type), string(t.Status),
		t.EntryPrice, t.EntryFee, t.SumPlusFee, t.Amount, t.DepositPercent,
		nullFloat(t.ExitPrice), nullFloat(t.ExitFee),
		t.OpenDate, nullTime(t.FilledDate), nullTime(t.CloseDate),
		t.InitialEntryPrice, t.InitialAmount, t.OriginalAmount, t.RemainingAmount,
		t.IsPartialClose, t.ClosedAmount, nullString(t.ParentTradeID),
		t.ReservedSumPlusFee, t.IsSplit, nullString(t.SplitFromTradeID), nullString(t.SplitGroupID),
	}
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var tradeType, status string
	var filledDate, closeDate sql.NullTime
	err := s.Scan(
		&t.ID, &t.PortfolioID, &t.CoinSymbol, &tradeType, &status,
		&t.EntryPrice, &t.EntryFee, &t.SumPlusFee, &t.Amount, &t.DepositPercent,
		&t.ExitPrice, &t.ExitFee,
		&t.OpenDate, &filledDate, &closeDate,
		&t.InitialEntryPrice, &t.InitialAmount, &t.OriginalAmount, &t.RemainingAmount,
		&t.IsPartialClose, &t.ClosedAmount, &t.ParentTradeID,
		&t.ReservedSumPlusFee, &t.IsSplit, &t.SplitFromTradeID, &t.SplitGroupID)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Type = domain.TradeType(tradeType)
	t.Status = domain.TradeStatus(status)
	if filledDate.Valid {
		t.FilledDate = filledDate.Time
	}
	if closeDate.Valid {
		t.CloseDate = closeDate.Time
	}
	return t, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
