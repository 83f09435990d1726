package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/mood_store/pkg/mood"
	"github.com/fjod/mood_store/product-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrProductNotFound = errors.New("product not found")
	ErrReviewNotFound  = errors.New("review not found")
	ErrAlreadyReviewed = errors.New("product already reviewed by user")
)

type Repository struct {
	db *sql.DB
}

type RepoInterface interface {
	ListProducts(ctx context.Context, filter domain.Filter) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	RelatedProducts(ctx context.Context, id string, limit int) ([]*domain.Product, error)
	Close() error
	RunMigrations() error
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection: sqlite has a single writer and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const productColumns = `id, name, description, price, image_url, moods, inventory, category, created_at`

func (r *Repository) ListProducts(ctx context.Context, filter domain.Filter) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE (? = '' OR EXISTS (SELECT 1 FROM json_each(products.moods) WHERE json_each.value = ?))
		  AND (? = '' OR category = ?)
		ORDER BY name
	`

	m := string(filter.Mood)
	rows, err := r.db.QueryContext(ctx, query, m, m, filter.Category, filter.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RelatedProducts ranks other products by shared category first and then by
// the number of moods they share with id. Products sharing neither are left out.
func (r *Repository) RelatedProducts(ctx context.Context, id string, limit int) ([]*domain.Product, error) {
	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	moodsJSON, err := json.Marshal(p.Moods)
	if err != nil {
		return nil, fmt.Errorf("failed to encode moods of product %s: %w", id, err)
	}

	query := `
		SELECT ` + productColumns + `
		FROM (
			SELECT ` + productColumns + `,
				category = ? AS same_category,
				(SELECT COUNT(*) FROM json_each(products.moods)
				 WHERE json_each.value IN (SELECT value FROM json_each(?))) AS shared_moods
			FROM products
			WHERE id <> ?
		)
		WHERE same_category OR shared_moods > 0
		ORDER BY same_category DESC, shared_moods DESC, name
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, p.Category, string(moodsJSON), id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query related products: %w", err)
	}
	defer rows.Close()

	related := make([]*domain.Product, 0, limit)
	for rows.Next() {
		rp, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		related = append(related, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return related, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.Product, error) {
	p := &domain.Product{}
	var moodsJSON string
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.ImageURL,
		&moodsJSON,
		&p.Inventory,
		&p.Category,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	var raw []string
	if err := json.Unmarshal([]byte(moodsJSON), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode moods of product %s: %w", p.ID, err)
	}
	p.Moods = make([]mood.Tag, 0, len(raw))
	for _, m := range raw {
		p.Moods = append(p.Moods, mood.Parse(m))
	}
	return p, nil
}
