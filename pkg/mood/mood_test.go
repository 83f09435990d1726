package mood

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalOrderIsStable(t *testing.T) {
	assert.Equal(t,
		[]Tag{Happy, Tired, Energetic, Chill, Focused, Celebrating, Relaxed, Curious},
		Canonical())

	c := Canonical()
	c[0] = "Mutated"
	assert.Equal(t, Happy, Canonical()[0])
}

func TestParse(t *testing.T) {
	assert.Equal(t, Happy, Parse("happy"))
	assert.Equal(t, Celebrating, Parse("  CELEBRATING "))
	assert.Equal(t, Tag("Nostalgic"), Parse(" Nostalgic"))
	assert.Equal(t, None, Parse(""))
}

func TestRankAndKnown(t *testing.T) {
	assert.Equal(t, 0, Rank(Happy))
	assert.Equal(t, 7, Rank(Curious))
	assert.Equal(t, -1, Rank("Nostalgic"))
	assert.True(t, Focused.IsKnown())
	assert.False(t, Tag("Nostalgic").IsKnown())
}

func TestOrder_AppendsUnknownFirstSeen(t *testing.T) {
	order := Order("Nostalgic", Happy, "Bored", "Nostalgic", None)
	assert.Len(t, order, 10)
	assert.Equal(t, Tag("Nostalgic"), order[8])
	assert.Equal(t, Tag("Bored"), order[9])
}

func TestEmoji(t *testing.T) {
	assert.Equal(t, "🎉", Celebrating.Emoji())
	assert.Equal(t, "", Tag("Nostalgic").Emoji())
}
