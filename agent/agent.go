// Package agent wraps LLM-backed processors used to write the digest shown
// above the announcement and changelog lists.
package agent

import "context"

// Agent turns text into text, e.g. a feed listing into a short digest.
type Agent interface {
	// Process takes content and returns processed markdown
	Process(ctx context.Context, content string) (string, error)

	// Name returns the agent identifier (e.g., "summary")
	Name() string
}
