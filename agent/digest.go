package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scipunch/editorhub/feed"
)

// ErrNothingToDigest is returned when both feeds are empty.
var ErrNothingToDigest = errors.New("no announcements or changelogs to digest")

// DigestInput renders the newest items of both feeds as the plain text the
// digest prompt expects. limit caps each section; zero means no cap.
func DigestInput(announcements []feed.Announcement, changelogs []feed.Changelog, limit int) string {
	var b strings.Builder

	if n := capped(len(announcements), limit); n > 0 {
		b.WriteString("## Announcements\n\n")
		for _, a := range announcements[:n] {
			fmt.Fprintf(&b, "- %s", a.Title)
			if !a.Date.IsZero() {
				fmt.Fprintf(&b, " (%s)", a.Date.Format("2006-01-02"))
			}
			b.WriteString("\n")
			if a.Description != "" {
				fmt.Fprintf(&b, "  %s\n", strings.ReplaceAll(strings.TrimSpace(a.Description), "\n", " "))
			}
		}
		b.WriteString("\n")
	}

	if n := capped(len(changelogs), limit); n > 0 {
		b.WriteString("## Changelogs\n\n")
		for _, c := range changelogs[:n] {
			fmt.Fprintf(&b, "### %s\n", c.Version)
			for _, change := range c.Changes {
				fmt.Fprintf(&b, "- %s\n", change)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String())
}

// Digest asks a to summarize the feeds.
func Digest(ctx context.Context, a Agent, announcements []feed.Announcement, changelogs []feed.Changelog, limit int) (string, error) {
	input := DigestInput(announcements, changelogs, limit)
	if input == "" {
		return "", ErrNothingToDigest
	}

	out, err := a.Process(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to build digest with %w", err)
	}
	slog.Info("digest generated", "agent", a.Name(), "input_length", len(input), "output_length", len(out))
	return out, nil
}

func capped(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
