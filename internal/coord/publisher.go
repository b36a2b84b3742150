package coord

import (
	"context"

	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/model"
)

// Post is a draft ready for an output channel.
type Post struct {
	RunID          string
	EventID        string
	Title          string
	Draft          model.GenerationDraft
	FallbackReason string
}

// Publisher delivers a post to an output channel. A returned error leaves
// the cycle's items unprocessed so the next cycle sees them again.
type Publisher interface {
	Publish(ctx context.Context, p Post) error
}

// LogPublisher writes posts to the application log. It is the default when
// no channel is configured.
type LogPublisher struct{}

// Publish logs the narrative.
func (LogPublisher) Publish(_ context.Context, p Post) error {
	logging.Info("Published",
		"run", p.RunID,
		"event", p.EventID,
		"sentiment", p.Draft.Sentiment,
		"fallback", p.FallbackReason,
		"text", p.Draft.Narrative,
	)
	return nil
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, p Post) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, p Post) error {
	return f(ctx, p)
}
