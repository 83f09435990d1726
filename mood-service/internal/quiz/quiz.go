// Package quiz holds the fixed mood quiz and the answer sheet it is played on.
package quiz

import (
	"errors"
	"fmt"

	"github.com/fjod/mood_store/mood-service/internal/scorer"
	"github.com/fjod/mood_store/pkg/mood"
)

var (
	ErrNoSuchQuestion = errors.New("no such question")
	ErrNoSuchOption   = errors.New("mood is not an option of this question")
	ErrIncomplete     = errors.New("quiz has unanswered questions")
)

type Option struct {
	Label string   `json:"label"`
	Mood  mood.Tag `json:"mood"`
}

type Question struct {
	Text    string   `json:"question"`
	Options []Option `json:"options"`
}

func (q Question) HasMood(t mood.Tag) bool {
	for _, o := range q.Options {
		if o.Mood == t {
			return true
		}
	}
	return false
}

var questions = []Question{
	{
		Text: "What would you like to do right now?",
		Options: []Option{
			{"Take a nap", mood.Tired},
			{"Go to a party", mood.Celebrating},
			{"Relax in nature", mood.Chill},
			{"Exercise", mood.Energetic},
			{"Read a book", mood.Focused},
		},
	},
	{
		Text: "What kind of music do you want to listen to?",
		Options: []Option{
			{"Upbeat and energetic", mood.Energetic},
			{"Calm and soothing", mood.Relaxed},
			{"Party anthems", mood.Celebrating},
			{"Focus beats", mood.Focused},
			{"Nothing, I need silence", mood.Tired},
		},
	},
	{
		Text: "What's your energy level right now?",
		Options: []Option{
			{"Very low, I'm exhausted", mood.Tired},
			{"Low, but peaceful", mood.Relaxed},
			{"Moderate and balanced", mood.Chill},
			{"High, I'm feeling good", mood.Happy},
			{"Very high, I'm pumped!", mood.Energetic},
		},
	},
	{
		Text: "What kind of environment are you in?",
		Options: []Option{
			{"At home relaxing", mood.Chill},
			{"At work or studying", mood.Focused},
			{"Out with friends", mood.Celebrating},
			{"In nature", mood.Relaxed},
			{"On the go", mood.Energetic},
		},
	},
	{
		Text: "What would taste good right now?",
		Options: []Option{
			{"Coffee or energy drink", mood.Tired},
			{"Something sweet", mood.Happy},
			{"A healthy meal", mood.Focused},
			{"Comfort food", mood.Chill},
			{"Celebration treats", mood.Celebrating},
		},
	},
}

// Questions returns a copy of the quiz in question order.
func Questions() []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		out[i] = Question{Text: q.Text, Options: append([]Option(nil), q.Options...)}
	}
	return out
}

func Len() int { return len(questions) }

// AnswerSheet has one slot per question; answering a question again
// overwrites its slot.
type AnswerSheet struct {
	slots []mood.Tag
}

func NewAnswerSheet() *AnswerSheet {
	return &AnswerSheet{slots: make([]mood.Tag, len(questions))}
}

func (s *AnswerSheet) Set(question int, t mood.Tag) error {
	if question < 0 || question >= len(s.slots) {
		return fmt.Errorf("question %d: %w", question, ErrNoSuchQuestion)
	}
	if !questions[question].HasMood(t) {
		return fmt.Errorf("question %d, mood %q: %w", question, t, ErrNoSuchOption)
	}
	s.slots[question] = t
	return nil
}

func (s *AnswerSheet) Complete() bool {
	for _, t := range s.slots {
		if t.IsNone() {
			return false
		}
	}
	return true
}

// Answers returns the filled sheet in question order, ready for scoring.
func (s *AnswerSheet) Answers() ([]scorer.Answer, error) {
	if !s.Complete() {
		return nil, ErrIncomplete
	}
	out := make([]scorer.Answer, len(s.slots))
	for i, t := range s.slots {
		out[i] = scorer.Answer{QuestionIndex: i, Mood: t}
	}
	return out, nil
}
