// Package detector guesses a mood from a selfie. The guess is a stand-in
// until a vision model is wired in: it hashes the image, so the same image
// always yields the same mood.
package detector

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"

	"github.com/fjod/mood_store/pkg/mood"
)

var ErrImageRequired = errors.New("image data is required")

// Candidates are the moods the detector can return.
var Candidates = []mood.Tag{mood.Happy, mood.Tired, mood.Energetic, mood.Chill, mood.Focused, mood.Celebrating}

type HashDetector struct{}

// Detect accepts raw base64 or a data URL; the data URL header is ignored.
func (HashDetector) Detect(ctx context.Context, image string) (mood.Tag, error) {
	if err := ctx.Err(); err != nil {
		return mood.None, err
	}
	if i := strings.Index(image, ","); strings.HasPrefix(image, "data:") && i >= 0 {
		image = image[i+1:]
	}
	image = strings.TrimSpace(image)
	if image == "" {
		return mood.None, ErrImageRequired
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(image))
	return Candidates[h.Sum32()%uint32(len(Candidates))], nil
}
