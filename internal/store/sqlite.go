package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/shopspring/decimal"

	"github.com/Kian-Abdalkhani/economy-engine/internal/model"
)

// SQLiteStore implements Store on a single on-disk SQLite file with WAL
// mode enabled. This is the default durable store: one file, loaded fully
// at startup, one transaction per economic event.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id          TEXT PRIMARY KEY,
			balance          INTEGER NOT NULL,
			last_daily_claim TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			user_id   TEXT NOT NULL,
			symbol    TEXT NOT NULL,
			quantity  INTEGER NOT NULL,
			avg_cost  TEXT NOT NULL,
			leverage  TEXT NOT NULL,
			opened_at TEXT NOT NULL,
			PRIMARY KEY (user_id, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS paid_dividends (
			user_id TEXT NOT NULL,
			symbol  TEXT NOT NULL,
			ex_date TEXT NOT NULL,
			PRIMARY KEY (user_id, symbol, ex_date)
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			kind         TEXT NOT NULL,
			symbol       TEXT,
			quantity     INTEGER NOT NULL DEFAULT 0,
			price        TEXT NOT NULL,
			amount       INTEGER NOT NULL,
			balance      INTEGER NOT NULL,
			counterparty TEXT,
			timestamp    TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user
			ON ledger_entries (user_id, timestamp);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{}

	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, balance, last_daily_claim FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a model.Account
		var claim sql.NullString
		if err := rows.Scan(&a.UserID, &a.Balance, &claim); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if claim.Valid {
			t, err := time.Parse(time.RFC3339Nano, claim.String)
			if err != nil {
				slog.Warn("skipping unparseable daily claim stamp", "user", a.UserID, "err", err)
			} else {
				a.LastDailyClaim = &t
			}
		}
		snap.Accounts = append(snap.Accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	posRows, err := s.db.QueryContext(ctx,
		"SELECT user_id, symbol, quantity, avg_cost, leverage, opened_at FROM positions")
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer posRows.Close()
	for posRows.Next() {
		var p model.Position
		var avgCost, leverage, openedAt string
		if err := posRows.Scan(&p.UserID, &p.Symbol, &p.Quantity, &avgCost, &leverage, &openedAt); err != nil {
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
		p.OpenedAt, _ = time.Parse(time.RFC3339Nano, openedAt)
		snap.Positions = append(snap.Positions, p)
	}
	if err := posRows.Err(); err != nil {
		return nil, err
	}

	paidRows, err := s.db.QueryContext(ctx,
		"SELECT user_id, symbol, ex_date FROM paid_dividends")
	if err != nil {
		return nil, fmt.Errorf("load paid dividends: %w", err)
	}
	defer paidRows.Close()
	for paidRows.Next() {
		var pd model.PaidDividend
		var exDate string
		if err := paidRows.Scan(&pd.UserID, &pd.Symbol, &exDate); err != nil {
			return nil, fmt.Errorf("scan paid dividend: %w", err)
		}
		if pd.ExDate, err = time.Parse(time.RFC3339Nano, exDate); err != nil {
			slog.Warn("skipping paid dividend with bad ex-date", "user", pd.UserID, "symbol", pd.Symbol, "err", err)
			continue
		}
		snap.Paid = append(snap.Paid, pd)
	}
	return snap, paidRows.Err()
}

func (s *SQLiteStore) SaveAccount(ctx context.Context, acct *model.Account, entry *model.LedgerEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertAccountSQLite(ctx, tx, acct); err != nil {
			return err
		}
		return insertEntrySQLite(ctx, tx, entry)
	})
}

func (s *SQLiteStore) SaveAccountPair(ctx context.Context, from, to *model.Account, entry *model.LedgerEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertAccountSQLite(ctx, tx, from); err != nil {
			return err
		}
		if err := upsertAccountSQLite(ctx, tx, to); err != nil {
			return err
		}
		return insertEntrySQLite(ctx, tx, entry)
	})
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, acct *model.Account, pos *model.Position, removePos bool, entry *model.LedgerEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertAccountSQLite(ctx, tx, acct); err != nil {
			return err
		}
		if removePos {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM positions WHERE user_id = ? AND symbol = ?",
				pos.UserID, pos.Symbol); err != nil {
				return fmt.Errorf("delete position: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO positions (user_id, symbol, quantity, avg_cost, leverage, opened_at)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (user_id, symbol) DO UPDATE SET
				   quantity = excluded.quantity,
				   avg_cost = excluded.avg_cost,
				   leverage = excluded.leverage`,
				pos.UserID, pos.Symbol, pos.Quantity,
				pos.AvgCost.String(), pos.Leverage.String(),
				pos.OpenedAt.UTC().Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("upsert position: %w", err)
			}
		}
		return insertEntrySQLite(ctx, tx, entry)
	})
}

func (s *SQLiteStore) SavePayout(ctx context.Context, acct *model.Account, paid model.PaidDividend, entry *model.LedgerEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertAccountSQLite(ctx, tx, acct); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO paid_dividends (user_id, symbol, ex_date) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, symbol, ex_date) DO NOTHING`,
			paid.UserID, paid.Symbol, paid.ExDate.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert paid dividend: %w", err)
		}
		return insertEntrySQLite(ctx, tx, entry)
	})
}

func (s *SQLiteStore) EntriesByUser(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, symbol, quantity, price, amount, balance, counterparty, timestamp
		 FROM ledger_entries
		 WHERE user_id = ? OR counterparty = ?
		 ORDER BY timestamp DESC LIMIT ?`,
		userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var symbol, counterparty sql.NullString
		var price, ts string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &symbol, &e.Quantity,
			&price, &e.Amount, &e.Balance, &counterparty, &ts); err != nil {
			return nil, err
		}
		e.Symbol = symbol.String
		e.Counterparty = counterparty.String
		e.Price, _ = decimal.NewFromString(price)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsertAccountSQLite(ctx context.Context, tx *sql.Tx, acct *model.Account) error {
	var claim any
	if acct.LastDailyClaim != nil {
		claim = acct.LastDailyClaim.UTC().Format(time.RFC3339Nano)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance, last_daily_claim) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   balance = excluded.balance,
		   last_daily_claim = excluded.last_daily_claim`,
		acct.UserID, acct.Balance, claim)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", acct.UserID, err)
	}
	return nil
}

func insertEntrySQLite(ctx context.Context, tx *sql.Tx, entry *model.LedgerEntry) error {
	if entry == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, user_id, kind, symbol, quantity, price, amount, balance, counterparty, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Kind, entry.Symbol, entry.Quantity,
		entry.Price.String(), entry.Amount, entry.Balance, entry.Counterparty,
		entry.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}
