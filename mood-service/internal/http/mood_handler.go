package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/mood_store/mood-service/internal/detector"
	"github.com/fjod/mood_store/mood-service/internal/preferences"
	"github.com/fjod/mood_store/mood-service/internal/quiz"
	"github.com/fjod/mood_store/mood-service/internal/scorer"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/pkg/mood"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/go-chi/chi/v5"
)

// recentMoods is how many preferred moods are shown to a returning user.
const recentMoods = 3

type Preferences interface {
	RecordQuiz(ctx context.Context, userID string, r scorer.Result) error
	Select(ctx context.Context, userID string, t mood.Tag) (int64, error)
	Top(ctx context.Context, userID string, n int) ([]preferences.Count, error)
}

type Catalog interface {
	ListByMood(ctx context.Context, m mood.Tag) ([]client.ProductView, error)
}

type Detector interface {
	Detect(ctx context.Context, image string) (mood.Tag, error)
}

type MoodHandler struct {
	prefs    Preferences
	catalog  Catalog
	detector Detector
	timeout  time.Duration
	log      *slog.Logger
}

func NewMoodHandler(prefs Preferences, catalog Catalog, detector Detector, timeout time.Duration, log *slog.Logger) *MoodHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MoodHandler{
		prefs:    prefs,
		catalog:  catalog,
		detector: detector,
		timeout:  timeout,
		log:      log,
	}
}

type QuizResponse struct {
	Questions []quiz.Question `json:"questions"`
}

type QuizRequestDTO struct {
	Answers []string `json:"answers"`
}

type QuizResultResponse struct {
	Primary      mood.Tag             `json:"primary"`
	PrimaryEmoji string               `json:"primary_emoji,omitempty"`
	Secondary    mood.Tag             `json:"secondary,omitempty"`
	Scores       map[mood.Tag]float64 `json:"scores"`
	Products     []client.ProductView `json:"products"`
}

type SelectRequestDTO struct {
	Mood string `json:"mood"`
}

type SelectResponse struct {
	Mood     mood.Tag             `json:"mood"`
	Count    int64                `json:"count"`
	Products []client.ProductView `json:"products"`
}

type PreferenceResponse struct {
	Mood  mood.Tag `json:"mood"`
	Emoji string   `json:"emoji,omitempty"`
	Count int64    `json:"count"`
}

type PreferencesResponse struct {
	Moods []PreferenceResponse `json:"moods"`
}

type DetectRequestDTO struct {
	Image string `json:"image"`
}

type DetectResponse struct {
	Mood mood.Tag `json:"mood"`
}

// GET /api/v1/mood/quiz
func (h *MoodHandler) GetQuiz(w http.ResponseWriter, _ *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, QuizResponse{Questions: quiz.Questions()})
}

// POST /api/v1/mood/quiz
func (h *MoodHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req QuizRequestDTO
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Answers) != quiz.Len() {
		httpx.BadRequest(w, "incomplete_quiz", "every question must be answered")
		return
	}
	sheet := quiz.NewAnswerSheet()
	for i, a := range req.Answers {
		if err := sheet.Set(i, mood.Parse(a)); err != nil {
			httpx.BadRequest(w, "invalid_answer", err.Error())
			return
		}
	}
	answers, err := sheet.Answers()
	if err != nil {
		httpx.BadRequest(w, "incomplete_quiz", err.Error())
		return
	}

	result := scorer.Score(answers)
	if userID := httpx.UserIDFrom(r.Context()); userID != "" {
		if err := h.prefs.RecordQuiz(ctx, userID, result); err != nil {
			h.log.WarnContext(ctx, "mood preferences not updated", "user_id", userID, "err", err)
		}
	}

	resp := QuizResultResponse{
		Primary:      result.Primary,
		PrimaryEmoji: result.Primary.Emoji(),
		Secondary:    result.Secondary,
		Scores:       make(map[mood.Tag]float64, len(result.Scores)),
		Products:     h.productsFor(ctx, result.Primary),
	}
	for t, s := range result.Scores {
		resp.Scores[t] = s.Float64()
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

// POST /api/v1/mood/select
func (h *MoodHandler) Select(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SelectRequestDTO
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}
	t := mood.Parse(req.Mood)
	if t.IsNone() {
		httpx.BadRequest(w, "invalid_mood", "mood is required")
		return
	}

	n, err := h.prefs.Select(ctx, httpx.UserIDFrom(r.Context()), t)
	if err != nil {
		httpx.Internal(w, r, h.log, "select mood failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, SelectResponse{Mood: t, Count: n, Products: h.productsFor(ctx, t)})
}

// GET /api/v1/mood/preferences
func (h *MoodHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	top, err := h.prefs.Top(ctx, httpx.UserIDFrom(r.Context()), recentMoods)
	if err != nil {
		httpx.Internal(w, r, h.log, "read mood preferences failed", err)
		return
	}
	resp := PreferencesResponse{Moods: make([]PreferenceResponse, len(top))}
	for i, c := range top {
		resp.Moods[i] = PreferenceResponse{Mood: c.Mood, Emoji: c.Mood.Emoji(), Count: c.Count}
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

// POST /api/v1/mood/detect
func (h *MoodHandler) Detect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req DetectRequestDTO
	if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}

	t, err := h.detector.Detect(ctx, req.Image)
	if errors.Is(err, detector.ErrImageRequired) {
		httpx.BadRequest(w, "image_required", "Image data is required")
		return
	}
	if err != nil {
		httpx.Internal(w, r, h.log, "mood detection failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, DetectResponse{Mood: t})
}

// productsFor is best effort: the mood result is still useful without the
// catalog.
func (h *MoodHandler) productsFor(ctx context.Context, t mood.Tag) []client.ProductView {
	products, err := h.catalog.ListByMood(ctx, t)
	if err != nil {
		h.log.WarnContext(ctx, "products for mood unavailable", "mood", t.String(), "err", err)
		return []client.ProductView{}
	}
	return products
}

func (h *MoodHandler) Routes(r chi.Router) {
	r.Get("/quiz", h.GetQuiz)
	r.Post("/quiz", h.SubmitQuiz)
	r.Post("/detect", h.Detect)
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireUser)
		r.Post("/select", h.Select)
		r.Get("/preferences", h.Preferences)
	})
}
