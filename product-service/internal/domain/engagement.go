package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 2000
	// RelatedLimit is how many related products a product page shows.
	RelatedLimit = 4
)

var (
	ErrInvalidRating = fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)
	ErrEmptyComment  = errors.New("comment is required")
	ErrLongComment   = fmt.Errorf("comment is longer than %d characters", MaxCommentLength)
	ErrUnknownEmoji  = errors.New("unsupported reaction emoji")
)

// reactionEmojis is the closed reaction palette, in display order.
var reactionEmojis = []string{"❤️", "🔥", "😍", "👍", "🤯"}

func ReactionEmojis() []string {
	return slices.Clone(reactionEmojis)
}

func IsReactionEmoji(e string) bool {
	return slices.Contains(reactionEmojis, e)
}

type Review struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ProductID    string    `json:"product_id"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	HelpfulCount int       `json:"helpful_count"`
	HelpfulByMe  bool      `json:"helpful_by_me"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewReview validates and normalizes a submitted review. ID and CreatedAt are
// assigned by the store.
func NewReview(userID, productID string, rating int, comment string) (Review, error) {
	if rating < MinRating || rating > MaxRating {
		return Review{}, ErrInvalidRating
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return Review{}, ErrEmptyComment
	}
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return Review{}, ErrLongComment
	}
	return Review{UserID: userID, ProductID: productID, Rating: rating, Comment: comment}, nil
}

// HelpfulVote is the state of a review after a helpful toggle.
type HelpfulVote struct {
	ReviewID     string `json:"review_id"`
	HelpfulCount int    `json:"helpful_count"`
	HelpfulByMe  bool   `json:"helpful_by_me"`
}

type Reaction struct {
	Emoji       string `json:"emoji"`
	Count       int    `json:"count"`
	UserReacted bool   `json:"user_reacted"`
}
