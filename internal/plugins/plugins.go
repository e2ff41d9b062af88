package plugins

import (
	"context"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/protocol"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
)

// Enqueue pushes a replacement document onto the outgoing stream.
type Enqueue func(doc *protocol.Document) error

// Plugin receives lifecycle events from a generation run. Every hook is
// required; embed NoopPlugin to implement only the hooks you care about.
type Plugin interface {
	// OnStreamError is called for any uncaught error during streaming.
	// Implementations may enqueue a replacement document; the run still
	// finalizes its error state afterwards.
	OnStreamError(ctx context.Context, err error, enqueue Enqueue) error

	// OnToxicModeration is called when the moderation gate flags toxic
	// content, before the run is aborted.
	OnToxicModeration(ctx context.Context, result *safety.ModerationResult, enqueue Enqueue) error

	// OnBackgroundWork registers non-blocking work with the host
	// lifecycle. Registration must not fail.
	OnBackgroundWork(name string, fn func(ctx context.Context) error)
}

// NoopPlugin implements Plugin with no-ops.
type NoopPlugin struct{}

func (NoopPlugin) OnStreamError(context.Context, error, Enqueue) error { return nil }

func (NoopPlugin) OnToxicModeration(context.Context, *safety.ModerationResult, Enqueue) error {
	return nil
}

func (NoopPlugin) OnBackgroundWork(string, func(ctx context.Context) error) {}
