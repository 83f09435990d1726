package domain

import (
	"slices"
	"time"

	"github.com/fjod/mood_store/pkg/mood"
	"github.com/shopspring/decimal"
)

// Product is the catalog row. Other services only ever read it.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Moods       []mood.Tag      `json:"moods"`
	Inventory   int             `json:"inventory"`
	Category    string          `json:"category"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p *Product) HasMood(t mood.Tag) bool {
	return slices.Contains(p.Moods, t)
}

func (p *Product) InStock() bool {
	return p.Inventory > 0
}

type Filter struct {
	Mood     mood.Tag
	Category string
}
