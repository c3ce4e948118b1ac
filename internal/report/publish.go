package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
	"github.com/RoqueChristian/backup-inteligencia/internal/platform/db"
)

const unifiedTable = "report_unified_ledger"

const unifiedDDL = `CREATE TABLE IF NOT EXISTS report_unified_ledger (
	run_id          uuid        NOT NULL,
	as_of           date        NOT NULL,
	kind            text        NOT NULL,
	classification  text        NOT NULL,
	buyer           text        NOT NULL,
	supplier        text        NOT NULL,
	branch          bigint      NOT NULL,
	unified_status  text        NOT NULL,
	days_overdue    integer     NOT NULL,
	due_at          date,
	pending_amount  numeric(18,2) NOT NULL,
	published_at    timestamptz NOT NULL DEFAULT now()
)`

var unifiedCopyColumns = []string{
	"run_id", "as_of", "kind", "classification", "buyer", "supplier",
	"branch", "unified_status", "days_overdue", "due_at", "pending_amount",
}

// Publication describes one snapshot written to Postgres.
type Publication struct {
	RunID uuid.UUID       `json:"run_id"`
	AsOf  string          `json:"as_of"`
	Rows  int64           `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

// Publisher replaces the unified ledger table with the latest snapshot.
type Publisher struct {
	db     db.Beginner
	logger *slog.Logger
}

// NewPublisher wires a publisher over a pool or connection.
func NewPublisher(conn db.Beginner, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{db: conn, logger: logger}
}

// Publish swaps the table contents for rows inside one transaction, so
// readers see either the previous snapshot or the new one.
func (p *Publisher) Publish(ctx context.Context, rows []ledger.Unified, asOf time.Time) (Publication, error) {
	pub := Publication{
		RunID: uuid.New(),
		AsOf:  asOf.Format(time.DateOnly),
		Total: ledger.TotalPending(rows),
	}
	day := pgtype.Date{Time: asOf, Valid: true}
	runID := pgtype.UUID{Bytes: pub.RunID, Valid: true}

	err := db.WithTx(ctx, p.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, unifiedDDL); err != nil {
			return fmt.Errorf("report: publish: ensure table: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM "+unifiedTable); err != nil {
			return fmt.Errorf("report: publish: clear: %w", err)
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{unifiedTable}, unifiedCopyColumns,
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				u := rows[i]
				return []any{
					runID, day, string(u.Type), u.Classification, u.Buyer, u.Supplier,
					u.Branch, string(u.Status), int32(u.DaysOverdue), u.DueAt, numeric(u.PendingAmount),
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("report: publish: copy: %w", err)
		}
		pub.Rows = n
		return nil
	})
	if err != nil {
		return Publication{}, err
	}
	p.logger.Info("unified ledger published",
		slog.String("run_id", pub.RunID.String()), slog.Int64("rows", pub.Rows), slog.String("as_of", pub.AsOf))
	return pub, nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
