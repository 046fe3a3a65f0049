package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL, for deployments where
// the engine's host has no durable local disk. Monetary decimals are
// stored as NUMERIC for exact precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store and applies the schema.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id          TEXT PRIMARY KEY,
			balance          BIGINT NOT NULL,
			last_daily_claim TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			user_id   TEXT NOT NULL,
			symbol    TEXT NOT NULL,
			quantity  BIGINT NOT NULL,
			avg_cost  NUMERIC NOT NULL,
			leverage  NUMERIC NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS paid_dividends (
			user_id TEXT NOT NULL,
			symbol  TEXT NOT NULL,
			ex_date TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, symbol, ex_date)
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			kind         TEXT NOT NULL,
			symbol       TEXT,
			quantity     BIGINT NOT NULL DEFAULT 0,
			price        NUMERIC NOT NULL,
			amount       BIGINT NOT NULL,
			balance      BIGINT NOT NULL,
			counterparty TEXT,
			timestamp    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user
			ON ledger_entries (user_id, timestamp)`,
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{}

	rows, err := s.pool.Query(ctx,
		"SELECT user_id, balance, last_daily_claim FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a model.Account
		var claim *time.Time
		if err := rows.Scan(&a.UserID, &a.Balance, &claim); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.LastDailyClaim = claim
		snap.Accounts = append(snap.Accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	posRows, err := s.pool.Query(ctx,
		"SELECT user_id, symbol, quantity, avg_cost::TEXT, leverage::TEXT, opened_at FROM positions")
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer posRows.Close()
	for posRows.Next() {
		var p model.Position
		var avgCost, leverage string
		if err := posRows.Scan(&p.UserID, &p.Symbol, &p.Quantity, &avgCost, &leverage, &p.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if p.AvgCost, err = decimal.NewFromString(avgCost); err != nil {
			slog.Warn("skipping position with bad cost basis", "user", p.UserID, "symbol", p.Symbol, "err", err)
			continue
		}
		if p.Leverage, err = decimal.NewFromString(leverage); err != nil {
			slog.Warn("skipping position with bad leverage", "user", p.UserID, "symbol", p.Symbol, "err", err)
			continue
		}
		snap.Positions = append(snap.Positions, p)
	}
	if err := posRows.Err(); err != nil {
		return nil, err
	}

	paidRows, err := s.pool.Query(ctx,
		"SELECT user_id, symbol, ex_date FROM paid_dividends")
	if err != nil {
		return nil, fmt.Errorf("load paid dividends: %w", err)
	}
	defer paidRows.Close()
	for paidRows.Next() {
		var pd model.PaidDividend
		if err := paidRows.Scan(&pd.UserID, &pd.Symbol, &pd.ExDate); err != nil {
			return nil, fmt.Errorf("scan paid dividend: %w", err)
		}
		snap.Paid = append(snap.Paid, pd)
	}
	return snap, paidRows.Err()
}

func (s *PostgresStore) SaveAccount(ctx context.Context, acct *model.Account, entry *model.LedgerEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := upsertAccountPG(ctx, tx, acct); err != nil {
			return err
		}
		return insertEntryPG(ctx, tx, entry)
	})
}

func (s *PostgresStore) SaveAccountPair(ctx context.Context, from, to *model.Account, entry *model.LedgerEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := upsertAccountPG(ctx, tx, from); err != nil {
			return err
		}
		if err := upsertAccountPG(ctx, tx, to); err != nil {
			return err
		}
		return insertEntryPG(ctx, tx, entry)
	})
}

func (s *PostgresStore) SaveTrade(ctx context.Context, acct *model.Account, pos *model.Position, removePos bool, entry *model.LedgerEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := upsertAccountPG(ctx, tx, acct); err != nil {
			return err
		}
		if removePos {
			if _, err := tx.Exec(ctx,
				"DELETE FROM positions WHERE user_id = $1 AND symbol = $2",
				pos.UserID, pos.Symbol); err != nil {
				return fmt.Errorf("delete position: %w", err)
			}
		} else {
			if _, err := tx.Exec(ctx,
				`INSERT INTO positions (user_id, symbol, quantity, avg_cost, leverage, opened_at)
				 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)
				 ON CONFLICT (user_id, symbol) DO UPDATE SET
				   quantity = EXCLUDED.quantity,
				   avg_cost = EXCLUDED.avg_cost,
				   leverage = EXCLUDED.leverage`,
				pos.UserID, pos.Symbol, pos.Quantity,
				pos.AvgCost.String(), pos.Leverage.String(), pos.OpenedAt); err != nil {
				return fmt.Errorf("upsert position: %w", err)
			}
		}
		return insertEntryPG(ctx, tx, entry)
	})
}

func (s *PostgresStore) SavePayout(ctx context.Context, acct *model.Account, paid model.PaidDividend, entry *model.LedgerEntry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := upsertAccountPG(ctx, tx, acct); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO paid_dividends (user_id, symbol, ex_date) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, symbol, ex_date) DO NOTHING`,
			paid.UserID, paid.Symbol, paid.ExDate); err != nil {
			return fmt.Errorf("insert paid dividend: %w", err)
		}
		return insertEntryPG(ctx, tx, entry)
	})
}

func (s *PostgresStore) EntriesByUser(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, kind, symbol, quantity, price::TEXT, amount, balance, counterparty, timestamp
		 FROM ledger_entries
		 WHERE user_id = $1 OR counterparty = $1
		 ORDER BY timestamp DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var symbol, counterparty *string
		var price string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &symbol, &e.Quantity,
			&price, &e.Amount, &e.Balance, &counterparty, &e.Timestamp); err != nil {
			return nil, err
		}
		if symbol != nil {
			e.Symbol = *symbol
		}
		if counterparty != nil {
			e.Counterparty = *counterparty
		}
		e.Price, _ = decimal.NewFromString(price)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func upsertAccountPG(ctx context.Context, tx pgx.Tx, acct *model.Account) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO accounts (user_id, balance, last_daily_claim) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
		   balance = EXCLUDED.balance,
		   last_daily_claim = EXCLUDED.last_daily_claim`,
		acct.UserID, acct.Balance, acct.LastDailyClaim)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", acct.UserID, err)
	}
	return nil
}

func insertEntryPG(ctx context.Context, tx pgx.Tx, entry *model.LedgerEntry) error {
	if entry == nil {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, user_id, kind, symbol, quantity, price, amount, balance, counterparty, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10)`,
		entry.ID, entry.UserID, entry.Kind, entry.Symbol, entry.Quantity,
		entry.Price.String(), entry.Amount, entry.Balance, entry.Counterparty,
		entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}
