// Package scorer turns quiz answers into a primary and secondary mood.
//
// Answer i (0-based) weighs 1 + 0.1*i, so later questions count more. Scores
// are kept in integer tenths so equal sums compare exactly. Moods are visited
// in mood.Order and only a strictly greater score takes a rank, which makes
// the earlier mood in that order win every tie.
package scorer

import (
	"fmt"
	"strconv"

	"github.com/fjod/mood_store/pkg/mood"
)

// Tenths is a score in tenths of a point; 21 means 2.1.
type Tenths int

func (t Tenths) Float64() float64 { return float64(t) / 10 }

func (t Tenths) String() string {
	return strconv.FormatFloat(t.Float64(), 'f', 1, 64)
}

// Weight of the answer at position i.
func Weight(i int) Tenths {
	return Tenths(10 + i)
}

type Answer struct {
	QuestionIndex int
	Mood          mood.Tag
}

type Result struct {
	Primary mood.Tag
	// Secondary is mood.None when fewer than two distinct moods were chosen.
	Secondary mood.Tag
	Scores    map[mood.Tag]Tenths
}

// Score tallies answers, which must be ordered by question and all filled.
// An empty mood is a caller bug and panics.
func Score(answers []Answer) Result {
	scores := make(map[mood.Tag]Tenths)
	var extra []mood.Tag
	for _, t := range mood.Canonical() {
		scores[t] = 0
	}

	for i, a := range answers {
		if a.Mood.IsNone() {
			panic(fmt.Sprintf("scorer: answer %d (question %d) has no mood", i, a.QuestionIndex))
		}
		if _, ok := scores[a.Mood]; !ok {
			extra = append(extra, a.Mood)
		}
		scores[a.Mood] += Weight(i)
	}

	var (
		primary, secondary           = mood.None, mood.None
		primaryScore, secondaryScore Tenths
	)
	for _, t := range mood.Order(extra...) {
		s := scores[t]
		switch {
		case s > primaryScore:
			secondary, secondaryScore = primary, primaryScore
			primary, primaryScore = t, s
		case s > secondaryScore:
			secondary, secondaryScore = t, s
		}
	}

	return Result{Primary: primary, Secondary: secondary, Scores: scores}
}
