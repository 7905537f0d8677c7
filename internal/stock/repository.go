package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obrador-ops/obrador-ops/internal/platform/db"
	"github.com/obrador-ops/obrador-ops/internal/shared"
)

// Repository persists stock items and ledger movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by services.
// ApplyDelta is the single mutator for item counters; InsertMovement is the
// single writer for the ledger.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id int64) (StockItem, error)
	ApplyDelta(ctx context.Context, id int64, totalDelta, processedDelta float64) (StockItem, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const itemColumns = `id, kind, name, unit, quantity_total, quantity_processed, unit_price, active, created_at, updated_at`

func scanItem(row pgx.Row) (StockItem, error) {
	var item StockItem
	err := row.Scan(&item.ID, &item.Kind, &item.Name, &item.Unit, &item.QuantityTotal, &item.QuantityProcessed, &item.UnitPrice, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockItem{}, ErrItemNotFound
		}
		return StockItem{}, err
	}
	return item, nil
}

// GetItem fetches one item without locking.
func (r *Repository) GetItem(ctx context.Context, id int64) (StockItem, error) {
	query := `SELECT ` + itemColumns + ` FROM stock_items WHERE id = $1`
	return scanItem(r.pool.QueryRow(ctx, query, id))
}

// SearchItems lists items matching the filter, active first, name ascending.
// The query is matched against the pre-normalised name_search column so the
// lookup is accent and case insensitive.
func (r *Repository) SearchItems(ctx context.Context, filter SearchFilter) ([]StockItem, error) {
	var (
		conds []string
		args  []any
	)
	if q := shared.NormalizeSearch(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("name_search LIKE $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if !filter.IncludeInactive {
		conds = append(conds, "active")
	}
	query := `SELECT ` + itemColumns + ` FROM stock_items`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY active DESC, name ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []StockItem
	for rows.Next() {
		var item StockItem
		if err := rows.Scan(&item.ID, &item.Kind, &item.Name, &item.Unit, &item.QuantityTotal, &item.QuantityProcessed, &item.UnitPrice, &item.Active, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetActive flips the soft-delete flag. History is retained.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_items SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

const movementColumns = `id, item_id, item_kind, kind, quantity, quantity_before, quantity_after, reason, actor, COALESCE(batch_id, ''), created_at`

// ListMovements returns ledger entries ordered by timestamp descending plus
// the total row count for the filter.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ItemID != 0 {
		add("item_id = $%d", filter.ItemID)
	}
	if filter.Actor != "" {
		add("actor = $%d", filter.Actor)
	}
	if filter.Kind != "" {
		add("kind = $%d", string(filter.Kind))
	}
	if filter.BatchID != "" {
		add("batch_id = $%d", filter.BatchID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT %s FROM stock_movements%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, movementColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.ItemKind, &m.Kind, &m.Quantity, &m.QuantityBefore, &m.QuantityAfter, &m.Reason, &m.Actor, &m.BatchID, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

// GetItemForUpdate fetches one item with a row lock held for the transaction.
func (r *txRepo) GetItemForUpdate(ctx context.Context, id int64) (StockItem, error) {
	query := `SELECT ` + itemColumns + ` FROM stock_items WHERE id = $1 FOR UPDATE`
	return scanItem(r.tx.QueryRow(ctx, query, id))
}

// ApplyDelta applies both counter deltas atomically and returns the new row.
func (r *txRepo) ApplyDelta(ctx context.Context, id int64, totalDelta, processedDelta float64) (StockItem, error) {
	query := `UPDATE stock_items
		SET quantity_total = quantity_total + $2,
		    quantity_processed = quantity_processed + $3,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + itemColumns
	return scanItem(r.tx.QueryRow(ctx, query, id, totalDelta, processedDelta))
}

// InsertMovement appends one immutable ledger entry.
func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var batchID any
	if m.BatchID != "" {
		batchID = m.BatchID
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
		(item_id, item_kind, kind, quantity, quantity_before, quantity_after, reason, actor, batch_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		m.ItemID, string(m.ItemKind), string(m.Kind), m.Quantity, m.QuantityBefore, m.QuantityAfter, m.Reason, m.Actor, batchID, createdAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_stock_movements_batch" {
			return 0, ErrDuplicateMovement
		}
		return 0, err
	}
	return id, nil
}
