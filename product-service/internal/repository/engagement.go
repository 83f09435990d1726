package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/mood_store/product-service/internal/domain"
	"github.com/google/uuid"
)

// EngagementStore holds what shoppers attach to products: favorites, reviews
// with helpful votes, and emoji reactions.
type EngagementStore interface {
	ListFavorites(ctx context.Context, userID string) ([]*domain.Product, error)
	AddFavorite(ctx context.Context, userID, productID string) error
	RemoveFavorite(ctx context.Context, userID, productID string) error

	ListReviews(ctx context.Context, productID, viewerID string) ([]domain.Review, error)
	CreateReview(ctx context.Context, review domain.Review) (domain.Review, error)
	ToggleHelpful(ctx context.Context, userID, reviewID string) (domain.HelpfulVote, error)

	Reactions(ctx context.Context, productID, viewerID string) ([]domain.Reaction, error)
	ToggleReaction(ctx context.Context, userID, productID, emoji string) ([]domain.Reaction, error)
}

var _ EngagementStore = (*Repository)(nil)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func productExists(ctx context.Context, q querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up product %s: %w", id, err)
	}
	return nil
}

func qualified(alias string) string {
	cols := strings.Split(productColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// ListFavorites returns the user's wishlist, most recently added first.
func (r *Repository) ListFavorites(ctx context.Context, userID string) ([]*domain.Product, error) {
	query := `
		SELECT ` + qualified("p") + `
		FROM user_favorites f
		JOIN products p ON p.id = f.product_id
		WHERE f.user_id = ?
		ORDER BY f.created_at DESC, f.rowid DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
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

// AddFavorite is idempotent; adding a product twice keeps one row.
func (r *Repository) AddFavorite(ctx context.Context, userID, productID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := productExists(ctx, tx, productID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_favorites (user_id, product_id) VALUES (?, ?)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`, userID, productID)
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return tx.Commit()
}

func (r *Repository) RemoveFavorite(ctx context.Context, userID, productID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_favorites WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

// ListReviews returns the product's reviews, newest first. HelpfulByMe is
// only ever set for a non-empty viewerID.
func (r *Repository) ListReviews(ctx context.Context, productID, viewerID string) ([]domain.Review, error) {
	query := `
		SELECT r.id, r.user_id, r.product_id, r.rating, r.comment, r.helpful_count, r.created_at,
			EXISTS (SELECT 1 FROM helpful_reviews h WHERE h.review_id = r.id AND h.user_id = ?)
		FROM product_reviews r
		WHERE r.product_id = ?
		ORDER BY r.created_at DESC, r.rowid DESC
	`
	rows, err := r.db.QueryContext(ctx, query, viewerID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.UserID, &rv.ProductID, &rv.Rating, &rv.Comment,
			&rv.HelpfulCount, &rv.CreatedAt, &rv.HelpfulByMe); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return reviews, nil
}

// CreateReview stores one review per user and product. A second review by the
// same user fails with ErrAlreadyReviewed.
func (r *Repository) CreateReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Review{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := productExists(ctx, tx, review.ProductID); err != nil {
		return domain.Review{}, err
	}

	review.ID = uuid.NewString()
	review.HelpfulCount = 0
	review.HelpfulByMe = false
	review.CreatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO product_reviews (id, user_id, product_id, rating, comment, helpful_count, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`, review.ID, review.UserID, review.ProductID, review.Rating, review.Comment, review.CreatedAt)
	if err != nil {
		return domain.Review{}, fmt.Errorf("failed to insert review: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Review{}, fmt.Errorf("failed to insert review: %w", err)
	} else if n == 0 {
		return domain.Review{}, ErrAlreadyReviewed
	}

	if err := tx.Commit(); err != nil {
		return domain.Review{}, fmt.Errorf("failed to commit review: %w", err)
	}
	return review, nil
}

// ToggleHelpful flips the user's helpful mark on a review and keeps the
// review's counter in step within one transaction.
func (r *Repository) ToggleHelpful(ctx context.Context, userID, reviewID string) (domain.HelpfulVote, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.HelpfulVote{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM product_reviews WHERE id = ?`, reviewID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HelpfulVote{}, ErrReviewNotFound
	}
	if err != nil {
		return domain.HelpfulVote{}, fmt.Errorf("failed to look up review %s: %w", reviewID, err)
	}

	vote := domain.HelpfulVote{ReviewID: reviewID}
	res, err := tx.ExecContext(ctx, `DELETE FROM helpful_reviews WHERE user_id = ? AND review_id = ?`, userID, reviewID)
	if err != nil {
		return domain.HelpfulVote{}, fmt.Errorf("failed to clear helpful mark: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return domain.HelpfulVote{}, fmt.Errorf("failed to clear helpful mark: %w", err)
	}

	counter := `UPDATE product_reviews SET helpful_count = MAX(helpful_count - 1, 0) WHERE id = ?`
	if removed == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO helpful_reviews (user_id, review_id) VALUES (?, ?)`, userID, reviewID); err != nil {
			return domain.HelpfulVote{}, fmt.Errorf("failed to mark review helpful: %w", err)
		}
		counter = `UPDATE product_reviews SET helpful_count = helpful_count + 1 WHERE id = ?`
		vote.HelpfulByMe = true
	}
	if _, err := tx.ExecContext(ctx, counter, reviewID); err != nil {
		return domain.HelpfulVote{}, fmt.Errorf("failed to update helpful count: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT helpful_count FROM product_reviews WHERE id = ?`, reviewID).Scan(&vote.HelpfulCount); err != nil {
		return domain.HelpfulVote{}, fmt.Errorf("failed to read helpful count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.HelpfulVote{}, fmt.Errorf("failed to commit helpful vote: %w", err)
	}
	return vote, nil
}

// Reactions returns one entry per palette emoji, zero counts included.
func (r *Repository) Reactions(ctx context.Context, productID, viewerID string) ([]domain.Reaction, error) {
	if err := productExists(ctx, r.db, productID); err != nil {
		return nil, err
	}
	return reactions(ctx, r.db, productID, viewerID)
}

// ToggleReaction adds the user's emoji reaction or takes it back, then
// returns the product's updated reactions.
func (r *Repository) ToggleReaction(ctx context.Context, userID, productID, emoji string) ([]domain.Reaction, error) {
	if !domain.IsReactionEmoji(emoji) {
		return nil, domain.ErrUnknownEmoji
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := productExists(ctx, tx, productID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM user_reactions WHERE user_id = ? AND product_id = ? AND emoji = ?`,
		userID, productID, emoji)
	if err != nil {
		return nil, fmt.Errorf("failed to clear reaction: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to clear reaction: %w", err)
	}

	if removed > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE product_reactions SET count = MAX(count - 1, 0)
			WHERE product_id = ? AND emoji = ?
		`, productID, emoji)
	} else {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_reactions (user_id, product_id, emoji) VALUES (?, ?, ?)`,
			userID, productID, emoji); err != nil {
			return nil, fmt.Errorf("failed to add reaction: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_reactions (product_id, emoji, count) VALUES (?, ?, 1)
			ON CONFLICT (product_id, emoji) DO UPDATE SET count = count + 1
		`, productID, emoji)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update reaction count: %w", err)
	}

	out, err := reactions(ctx, tx, productID, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reaction: %w", err)
	}
	return out, nil
}

type rowsQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func reactions(ctx context.Context, q rowsQuerier, productID, viewerID string) ([]domain.Reaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pr.emoji, pr.count,
			EXISTS (SELECT 1 FROM user_reactions ur
			        WHERE ur.product_id = pr.product_id AND ur.emoji = pr.emoji AND ur.user_id = ?)
		FROM product_reactions pr
		WHERE pr.product_id = ?
	`, viewerID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer rows.Close()

	stored := make(map[string]domain.Reaction)
	for rows.Next() {
		var rc domain.Reaction
		if err := rows.Scan(&rc.Emoji, &rc.Count, &rc.UserReacted); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		stored[rc.Emoji] = rc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	palette := domain.ReactionEmojis()
	out := make([]domain.Reaction, len(palette))
	for i, e := range palette {
		rc, ok := stored[e]
		if !ok {
			rc = domain.Reaction{Emoji: e}
		}
		out[i] = rc
	}
	return out, nil
}
