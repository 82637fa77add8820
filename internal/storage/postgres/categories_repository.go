package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/jackc/pgx/v5"
)

type CategoryRepository struct {
	db queryer
}

func (r *CategoryRepository) Create(ctx context.Context, name string) (catalog.Category, error) {
	row := r.db.QueryRow(ctx, `
INSERT INTO categories (name) VALUES ($1)
RETURNING id, name`, name)

	var category catalog.Category
	if err := row.Scan(&category.ID, &category.Name); err != nil {
		if isUniqueViolation(err) {
			return catalog.Category{}, catalog.ErrDuplicate
		}
		return catalog.Category{}, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]catalog.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []catalog.Category
	for rows.Next() {
		var category catalog.Category
		if err := rows.Scan(&category.ID, &category.Name); err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*catalog.Category, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name FROM categories WHERE id = $1`, id)

	var category catalog.Category
	if err := row.Scan(&category.ID, &category.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &category, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	// Events referencing the category go with it (ON DELETE CASCADE).
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
