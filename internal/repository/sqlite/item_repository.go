package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"secondchance/internal/domain"
	"secondchance/internal/repository"
)

// Items are kept as JSON documents so caller-supplied fields survive verbatim;
// the id column mirrors the document's id for lookups and ordering.
const createItemsTable = `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY,
	doc TEXT NOT NULL
);
`

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) repository.ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createItemsTable); err != nil {
		return fmt.Errorf("create items table: %w", err)
	}
	return nil
}

// CreateNext reads the current maximum id and inserts item with max+1 inside
// one transaction. An empty collection starts at 1.
func (r *ItemRepository) CreateNext(ctx context.Context, item *domain.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	var maxID int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM items`).Scan(&maxID); err != nil {
		return fmt.Errorf("query max item id: %w", err)
	}
	item.ID = maxID + 1

	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO items (id, doc) VALUES (?, ?)`, item.ID, string(doc)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert item %d: %w", item.ID, repository.ErrDuplicate)
		}
		return fmt.Errorf("insert item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *ItemRepository) Get(ctx context.Context, id int64) (*domain.Item, error) {
	return getItem(ctx, r.db, id)
}

func (r *ItemRepository) List(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc FROM items ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		var item domain.Item
		if err := json.Unmarshal([]byte(doc), &item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *ItemRepository) Update(ctx context.Context, id int64, patch domain.ItemPatch) (*domain.Item, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	item, err := getItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	item.Apply(patch)

	doc, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE items SET doc = ? WHERE id = ?`, string(doc), id); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	updated, err := getItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func (r *ItemRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("item rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItem(ctx context.Context, q queryRower, id int64) (*domain.Item, error) {
	var doc string
	if err := q.QueryRowContext(ctx, `SELECT doc FROM items WHERE id = ?`, id).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	var item domain.Item
	if err := json.Unmarshal([]byte(doc), &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &item, nil
}
