// Package mood defines the mood vocabulary shared by the catalog, the quiz
// and the preference counters.
package mood

import "strings"

// Tag is a mood label. The canonical set is closed, but tags coming from the
// catalog are free-form and unknown ones are tolerated.
type Tag string

const (
	Happy       Tag = "Happy"
	Tired       Tag = "Tired"
	Energetic   Tag = "Energetic"
	Chill       Tag = "Chill"
	Focused     Tag = "Focused"
	Celebrating Tag = "Celebrating"
	Relaxed     Tag = "Relaxed"
	Curious     Tag = "Curious"

	None Tag = ""
)

// canonical is the fixed iteration order. Ties in scoring and ranking are
// resolved by position in this list, so it must never be reordered.
var canonical = []Tag{Happy, Tired, Energetic, Chill, Focused, Celebrating, Relaxed, Curious}

var emoji = map[Tag]string{
	Happy:       "😊",
	Tired:       "😴",
	Energetic:   "💪",
	Chill:       "🌱",
	Focused:     "🧠",
	Celebrating: "🎉",
	Relaxed:     "😌",
	Curious:     "🤔",
}

// Canonical returns a copy of the canonical vocabulary in its fixed order.
func Canonical() []Tag {
	out := make([]Tag, len(canonical))
	copy(out, canonical)
	return out
}

func (t Tag) String() string { return string(t) }

func (t Tag) IsNone() bool { return t == None }

// IsKnown reports whether t is part of the canonical set.
func (t Tag) IsKnown() bool {
	return Rank(t) >= 0
}

// Emoji returns the display emoji, or "" for unknown tags.
func (t Tag) Emoji() string {
	return emoji[t]
}

// Rank is the position of t in the canonical order, -1 when unknown.
func Rank(t Tag) int {
	for i, c := range canonical {
		if c == t {
			return i
		}
	}
	return -1
}

// Parse normalises s: canonical tags match case-insensitively, anything else
// is kept as a trimmed free-form tag.
func Parse(s string) Tag {
	s = strings.TrimSpace(s)
	for _, c := range canonical {
		if strings.EqualFold(string(c), s) {
			return c
		}
	}
	return Tag(s)
}

// Order returns the canonical vocabulary followed by any unknown tags from
// extra, in first-seen order and without duplicates.
func Order(extra ...Tag) []Tag {
	out := Canonical()
	seen := make(map[Tag]struct{}, len(out)+len(extra))
	for _, t := range out {
		seen[t] = struct{}{}
	}
	for _, t := range extra {
		if t.IsNone() {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
