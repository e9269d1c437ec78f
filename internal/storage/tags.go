package storage

import (
	"context"
	"database/sql"
	"fmt"

	"moneta/internal/core"
)

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, owner_id, name, kind) VALUES (?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, string(c.Kind))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Conflictf("category %q (%s) already exists", c.Name, c.Kind)
		}
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, id string) (core.Category, error) {
	var c core.Category
	var kind string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, kind FROM categories WHERE owner_id = ? AND id = ?`,
		ownerID, id).Scan(&c.ID, &c.OwnerID, &c.Name, &kind)
	if err == sql.ErrNoRows {
		return core.Category{}, core.NotFoundf("category %s", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Kind = core.TransactionType(kind)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, kind FROM categories WHERE owner_id = ? ORDER BY kind, name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var kind string
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &kind); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.TransactionType(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateTag(ctx context.Context, t core.Tag) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tags (id, owner_id, name) VALUES (?, ?, ?)`, t.ID, t.OwnerID, t.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Conflictf("tag %q already exists", t.Name)
		}
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// GetTagByName backs the idempotent create-tag path.
func (r *SQLiteRepository) GetTagByName(ctx context.Context, ownerID, name string) (core.Tag, error) {
	var t core.Tag
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name FROM tags WHERE owner_id = ? AND name = ?`,
		ownerID, name).Scan(&t.ID, &t.OwnerID, &t.Name)
	if err == sql.ErrNoRows {
		return core.Tag{}, core.NotFoundf("tag %q", name)
	}
	if err != nil {
		return core.Tag{}, fmt.Errorf("get tag by name: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTags(ctx context.Context, ownerID string) ([]core.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name FROM tags WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []core.Tag
	for rows.Next() {
		var t core.Tag
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TagsByIDs resolves a set of tag ids, scoped to the owner. Missing ids are
// simply absent from the result; the caller decides whether that is an error.
func (r *SQLiteRepository) TagsByIDs(ctx context.Context, ownerID string, ids []string) ([]core.Tag, error) {
	out := make([]core.Tag, 0, len(ids))
	for _, id := range ids {
		var t core.Tag
		err := r.db.QueryRowContext(ctx,
			`SELECT id, owner_id, name FROM tags WHERE owner_id = ? AND id = ?`,
			ownerID, id).Scan(&t.ID, &t.OwnerID, &t.Name)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get tag %s: %w", id, err)
		}
		out = append(out, t)
	}
	return out, nil
}
