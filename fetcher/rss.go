package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/scipunch/editorhub/feed"
)

// ItemConverter maps an RSS/Atom entry to a feed item. It returns false to
// skip the entry.
type ItemConverter[T any] func(item *gofeed.Item) (T, bool)

// RSSSource fetches RSS or Atom feeds using gofeed
type RSSSource[T feed.Item[T]] struct {
	url     string
	parser  *gofeed.Parser
	convert ItemConverter[T]
	opts    Options
}

// NewRSSSource creates an RSS/Atom source for url.
func NewRSSSource[T feed.Item[T]](url string, convert ItemConverter[T], opts Options) *RSSSource[T] {
	parser := gofeed.NewParser()
	parser.Client = opts.httpClient()
	if opts.UserAgent != "" {
		parser.UserAgent = opts.UserAgent
	}
	return &RSSSource[T]{
		url:     url,
		parser:  parser,
		convert: convert,
		opts:    opts,
	}
}

func (s *RSSSource[T]) Name() string {
	return s.url
}

// Fetch retrieves and converts the feed, retrying failed attempts.
func (s *RSSSource[T]) Fetch(ctx context.Context) (feed.Feed[T], error) {
	return withRetry(ctx, s.url, s.opts, func() (feed.Feed[T], error) {
		return s.fetchOnce(ctx)
	})
}

func (s *RSSSource[T]) fetchOnce(ctx context.Context) (feed.Feed[T], error) {
	var f feed.Feed[T]

	parsed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return f, &StatusError{URL: s.url, Code: httpErr.StatusCode}
		}
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return f, fmt.Errorf("%w: %w", ErrParse, err)
		}
		return f, fmt.Errorf("%w: failed to parse RSS feed with %w", ErrTransport, err)
	}

	f.Version = parsed.FeedType + "/" + parsed.FeedVersion
	f.LastUpdated = feed.NewTime(time.Now())
	if parsed.UpdatedParsed != nil {
		f.LastUpdated = feed.NewTime(*parsed.UpdatedParsed)
	}
	f.Items = make([]T, 0, len(parsed.Items))

	for _, item := range parsed.Items {
		converted, ok := s.convert(item)
		if !ok {
			slog.Debug("skipping RSS entry", "source", s.url, "title", item.Title)
			continue
		}
		f.Items = append(f.Items, converted)
	}

	if !f.IsValid() {
		return f, fmt.Errorf("%w: %s has no usable entries", ErrParse, s.url)
	}
	return f, nil
}

// AnnouncementFromRSS maps entries to announcements with the given
// priority.
func AnnouncementFromRSS(priority int) ItemConverter[feed.Announcement] {
	return func(item *gofeed.Item) (feed.Announcement, bool) {
		a := feed.Announcement{
			ID:          entryID(item),
			Type:        "rss",
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			URL:         item.Link,
			Date:        entryDate(item),
			Priority:    priority,
			Tags:        item.Categories,
		}
		if item.Image != nil {
			a.ThumbnailURL = item.Image.URL
		} else {
			for _, enc := range item.Enclosures {
				if strings.HasPrefix(enc.Type, "image/") {
					a.ThumbnailURL = enc.URL
					break
				}
			}
		}
		return a, a.Valid()
	}
}

// ChangelogFromRSS maps entries to changelogs: the title is the version and
// each non-empty line of the body is one change.
func ChangelogFromRSS() ItemConverter[feed.Changelog] {
	return func(item *gofeed.Item) (feed.Changelog, bool) {
		body := item.Description
		if body == "" {
			body = item.Content
		}
		var changes []string
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
			if line != "" {
				changes = append(changes, line)
			}
		}
		c := feed.Changelog{
			ID:      entryID(item),
			Version: strings.TrimSpace(item.Title),
			Date:    entryDate(item),
			Changes: changes,
			URL:     item.Link,
		}
		return c, c.Valid()
	}
}

func entryID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

func entryDate(item *gofeed.Item) feed.Time {
	if item.PublishedParsed != nil {
		return feed.NewTime(*item.PublishedParsed)
	}
	if item.UpdatedParsed != nil {
		return feed.NewTime(*item.UpdatedParsed)
	}
	return feed.Time{}
}
