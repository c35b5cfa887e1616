package filter

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/scipunch/editorhub/config"
	"github.com/scipunch/editorhub/feed"
)

// FilterPipeline applies client targeting and a series of named filters to
// feed entries
type FilterPipeline struct {
	filters map[string]*CompiledFilter
	client  config.ClientConfig
	now     func() time.Time
}

// CompiledFilter contains compiled regex patterns for efficient matching
type CompiledFilter struct {
	config          config.Filter
	excludePatterns []*regexp.Regexp
	maxAge          time.Duration
}

// NewFilterPipeline creates a new filter pipeline from config. Entries that
// do not target client are always dropped.
func NewFilterPipeline(filtersConfig map[string]config.Filter, client config.ClientConfig) (*FilterPipeline, error) {
	compiled := make(map[string]*CompiledFilter)

	for name, filterCfg := range filtersConfig {
		cf := &CompiledFilter{
			config:          filterCfg,
			excludePatterns: make([]*regexp.Regexp, 0, len(filterCfg.ExcludePatterns)),
		}

		for _, pattern := range filterCfg.ExcludePatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				slog.Warn("invalid regex pattern in filter", "filter", name, "pattern", pattern, "error", err)
				continue
			}
			cf.excludePatterns = append(cf.excludePatterns, re)
		}

		if filterCfg.MaxAge != "" {
			d, err := time.ParseDuration(filterCfg.MaxAge)
			if err != nil {
				return nil, fmt.Errorf("invalid max_age in filter %s: %w", name, err)
			}
			cf.maxAge = d
		}

		compiled[name] = cf
	}

	return &FilterPipeline{filters: compiled, client: client, now: time.Now}, nil
}

// ShouldInclude returns true if the entry passes targeting and all filters
// in the pipeline. filterNames is a list of filter names to apply in order
func (fp *FilterPipeline) ShouldInclude(item feed.Entry, filterNames []string) (bool, string) {
	if !item.Targets().Matches(fp.client.Platform, fp.client.EditorVersion) {
		return false, "targeting"
	}

	for _, filterName := range filterNames {
		filter, exists := fp.filters[filterName]
		if !exists {
			slog.Warn("filter not found, skipping", "filter_name", filterName)
			continue
		}

		if shouldInclude, reason := fp.applyFilter(item, filter, filterName); !shouldInclude {
			return false, reason
		}
	}

	return true, ""
}

// Apply returns the entries of items that pass the pipeline, keeping their
// order.
func Apply[T feed.Entry](fp *FilterPipeline, items []T, filterNames []string) []T {
	if fp == nil {
		return items
	}
	kept := make([]T, 0, len(items))
	for _, item := range items {
		include, reason := fp.ShouldInclude(item, filterNames)
		if !include {
			slog.Debug("entry filtered out", "key", item.Key(), "reason", reason)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// applyFilter applies a single filter to an entry
func (fp *FilterPipeline) applyFilter(item feed.Entry, filter *CompiledFilter, filterName string) (bool, string) {
	text := item.Text()

	// 1. Check minimum length
	if filter.config.MinLength > 0 && len(text) < filter.config.MinLength {
		return false, filterName + ":min_length"
	}

	// 2. Check minimum word count
	if filter.config.MinWords > 0 {
		if countWords(text) < filter.config.MinWords {
			return false, filterName + ":min_words"
		}
	}

	// 3. Check exclude patterns
	for _, pattern := range filter.excludePatterns {
		if pattern.MatchString(text) {
			return false, filterName + ":exclude_pattern[" + pattern.String() + "]"
		}
	}

	// 4. Check paragraph requirement
	if filter.config.RequireParagraphs && !hasMultipleParagraphs(text) {
		return false, filterName + ":require_paragraphs"
	}

	// 5. Check tags
	if len(filter.config.RequireTags) > 0 && !hasAnyTag(item.Labels(), filter.config.RequireTags) {
		return false, filterName + ":require_tags"
	}

	// 6. Check age; undated entries pass
	if filter.maxAge > 0 {
		published := item.Published()
		if !published.IsZero() && fp.now().Sub(published) > filter.maxAge {
			return false, filterName + ":max_age"
		}
	}

	return true, ""
}

// countWords counts the number of words in text
func countWords(text string) int {
	words := 0
	inWord := false

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inWord {
				words++
				inWord = true
			}
		} else {
			inWord = false
		}
	}

	return words
}

// hasMultipleParagraphs checks if text has multiple non-empty lines
func hasMultipleParagraphs(text string) bool {
	nonEmptyLines := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			nonEmptyLines++
		}
	}
	return nonEmptyLines >= 2
}

func hasAnyTag(labels, required []string) bool {
	for _, label := range labels {
		if slices.ContainsFunc(required, func(r string) bool { return strings.EqualFold(r, label) }) {
			return true
		}
	}
	return false
}
