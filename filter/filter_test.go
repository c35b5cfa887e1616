package filter

import (
	"testing"
	"time"

	"github.com/scipunch/editorhub/config"
	"github.com/scipunch/editorhub/feed"
)

func TestFilterPipeline_MinLength(t *testing.T) {
	filters := map[string]config.Filter{
		"short": {
			MinLength: 50,
		},
	}

	pipeline, err := NewFilterPipeline(filters, config.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	tests := []struct {
		name          string
		item          feed.Announcement
		filterNames   []string
		shouldInclude bool
	}{
		{
			name: "long enough",
			item: feed.Announcement{
				Title:       "Test Title",
				Description: "This is a long enough description that should pass the filter",
			},
			filterNames:   []string{"short"},
			shouldInclude: true,
		},
		{
			name: "too short",
			item: feed.Announcement{
				Title:       "Short",
				Description: "Too short",
			},
			filterNames:   []string{"short"},
			shouldInclude: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, _ := pipeline.ShouldInclude(tt.item, tt.filterNames)
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v", tt.shouldInclude, include)
			}
		})
	}
}

func TestFilterPipeline_MinWords(t *testing.T) {
	filters := map[string]config.Filter{
		"word_count": {
			MinWords: 10,
		},
	}

	pipeline, err := NewFilterPipeline(filters, config.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	tests := []struct {
		name          string
		item          feed.Announcement
		shouldInclude bool
	}{
		{
			name: "enough words",
			item: feed.Announcement{
				Title:       "Test Article",
				Description: "This is a description with enough words to pass the filter test successfully",
			},
			shouldInclude: true,
		},
		{
			name: "too few words",
			item: feed.Announcement{
				Title:       "Short",
				Description: "Not enough words",
			},
			shouldInclude: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, _ := pipeline.ShouldInclude(tt.item, []string{"word_count"})
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v", tt.shouldInclude, include)
			}
		})
	}
}

func TestFilterPipeline_ExcludePatterns(t *testing.T) {
	filters := map[string]config.Filter{
		"promotions": {
			ExcludePatterns: []string{
				"^[Ss]ponsored:.*",
				"^[Ss]ale\\b.*",
				"(?i)^webinar.*",
			},
		},
	}

	pipeline, err := NewFilterPipeline(filters, config.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	tests := []struct {
		name          string
		item          feed.Announcement
		shouldInclude bool
	}{
		{
			name: "normal content",
			item: feed.Announcement{
				Title:       "Terrain tools preview",
				Description: "A first look at the new terrain sculpting brushes",
			},
			shouldInclude: true,
		},
		{
			name: "starts with 'Sponsored:'",
			item: feed.Announcement{
				Title:       "Sponsored: asset bundle",
				Description: "Some content",
			},
			shouldInclude: false,
		},
		{
			name: "starts with 'sale' lowercase",
			item: feed.Announcement{
				Title:       "sale on marketplace packs",
				Description: "Discounts",
			},
			shouldInclude: false,
		},
		{
			name: "case insensitive pattern",
			item: feed.Announcement{
				Title:       "WEBINAR: lighting deep dive",
				Description: "Register now",
			},
			shouldInclude: false,
		},
		{
			name: "contains but doesn't start with pattern",
			item: feed.Announcement{
				Title:       "Lighting changes after the webinar",
				Description: "Article content",
			},
			shouldInclude: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, reason := pipeline.ShouldInclude(tt.item, []string{"promotions"})
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v (reason: %s)", tt.shouldInclude, include, reason)
			}
		})
	}
}

func TestFilterPipeline_RequireParagraphs(t *testing.T) {
	filters := map[string]config.Filter{
		"paragraphs": {
			RequireParagraphs: true,
		},
	}

	pipeline, err := NewFilterPipeline(filters, config.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	tests := []struct {
		name          string
		item          feed.Announcement
		shouldInclude bool
	}{
		{
			name: "multiple paragraphs",
			item: feed.Announcement{
				Title:       "Article Title",
				Description: "First paragraph with some content.\n\nSecond paragraph with more content.",
			},
			shouldInclude: true,
		},
		{
			name: "single line",
			item: feed.Announcement{
				Title:       "Short announcement",
				Description: "Just one line of text",
			},
			shouldInclude: false,
		},
		{
			name: "multiple lines",
			item: feed.Announcement{
				Title:       "Title",
				Description: "First line\nSecond line\nThird line",
			},
			shouldInclude: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, _ := pipeline.ShouldInclude(tt.item, []string{"paragraphs"})
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v", tt.shouldInclude, include)
			}
		})
	}
}

func TestFilterPipeline_Pipeline(t *testing.T) {
	filters := map[string]config.Filter{
		"length": {
			MinLength: 30,
		},
		"words": {
			MinWords: 5,
		},
		"patterns": {
			ExcludePatterns: []string{"^[Ss]ponsored.*"},
		},
	}

	pipeline, err := NewFilterPipeline(filters, config.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	// Test that filters are applied in order (pipeline)
	item := feed.Announcement{
		Title:       "Sponsored post about the new rendering pipeline features",
		Description: "This is a longer description",
		Date:        feed.NewTime(time.Now()),
	}

	// Should pass length and word filters but fail pattern filter
	include, reason := pipeline.ShouldInclude(item, []string{"length", "words", "patterns"})
	if include {
		t.Errorf("Expected item to be filtered out by patterns, but it passed")
	}
	if reason != "patterns:exclude_pattern[^[Ss]ponsored.*]" {
		t.Errorf("Expected reason to mention pattern filter, got: %s", reason)
	}
}

func TestFilterPipeline_NoFilters(t *testing.T) {
	pipeline, err := NewFilterPipeline(map[string]config.Filter{}, config.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	item := feed.Announcement{
		Title:       "Any title",
		Description: "Any content",
	}

	// With no filters specified, should include everything
	include, _ := pipeline.ShouldInclude(item, []string{})
	if !include {
		t.Errorf("Expected item to be included when no filters applied")
	}
}

func TestFilterPipeline_Targeting(t *testing.T) {
	pipeline, err := NewFilterPipeline(nil, config.ClientConfig{Platform: "Linux", EditorVersion: "5.3.1"})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	tests := []struct {
		name          string
		item          feed.Announcement
		shouldInclude bool
	}{
		{"untargeted", feed.Announcement{Title: "All"}, true},
		{"platform match", feed.Announcement{TargetPlatforms: []string{"windows", "linux"}}, true},
		{"platform mismatch", feed.Announcement{TargetPlatforms: []string{"mac"}}, false},
		{"inside range", feed.Announcement{MinVersion: "5.3", MaxVersion: "5.4"}, true},
		{"too old client", feed.Announcement{MinVersion: "5.4.0"}, false},
		{"too new client", feed.Announcement{MaxVersion: "5.2"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, reason := pipeline.ShouldInclude(tt.item, nil)
			if include != tt.shouldInclude {
				t.Errorf("Expected shouldInclude=%v, got %v (reason: %s)", tt.shouldInclude, include, reason)
			}
		})
	}
}

func TestFilterPipeline_RequireTagsAndMaxAge(t *testing.T) {
	filters := map[string]config.Filter{
		"releases": {RequireTags: []string{"Release"}},
		"recent":   {MaxAge: "720h"},
	}
	pipeline, err := NewFilterPipeline(filters, config.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	pipeline.now = func() time.Time { return now }

	tagged := feed.Announcement{Tags: []string{"release"}, Date: feed.NewTime(now.AddDate(0, 0, -3))}
	if include, reason := pipeline.ShouldInclude(tagged, []string{"releases", "recent"}); !include {
		t.Errorf("expected tagged recent entry to pass, got %s", reason)
	}

	untagged := feed.Announcement{Tags: []string{"event"}}
	if _, reason := pipeline.ShouldInclude(untagged, []string{"releases"}); reason != "releases:require_tags" {
		t.Errorf("expected require_tags rejection, got %q", reason)
	}

	old := feed.Announcement{Date: feed.NewTime(now.AddDate(0, -2, 0))}
	if _, reason := pipeline.ShouldInclude(old, []string{"recent"}); reason != "recent:max_age" {
		t.Errorf("expected max_age rejection, got %q", reason)
	}

	if include, _ := pipeline.ShouldInclude(feed.Announcement{}, []string{"recent"}); !include {
		t.Error("expected undated entry to pass max_age")
	}
}

func TestNewFilterPipeline_InvalidMaxAge(t *testing.T) {
	_, err := NewFilterPipeline(map[string]config.Filter{"bad": {MaxAge: "a while"}}, config.ClientConfig{})
	if err == nil {
		t.Error("expected error for invalid max_age")
	}
}

func TestApply(t *testing.T) {
	pipeline, err := NewFilterPipeline(map[string]config.Filter{"long": {MinLength: 10}}, config.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	items := []feed.Changelog{
		{ID: "1", Version: "5.4.0", Changes: []string{"Faster shader compilation"}},
		{ID: "2", Version: "5.3.9", Changes: []string{"Fix"}},
		{ID: "3", Version: "5.3.8", Changes: []string{"Crash fix in the importer"}},
	}

	kept := Apply(pipeline, items, []string{"long"})
	if len(kept) != 2 || kept[0].ID != "1" || kept[1].ID != "3" {
		t.Errorf("unexpected result %+v", kept)
	}

	if got := Apply[feed.Changelog](nil, items, nil); len(got) != 3 {
		t.Errorf("expected nil pipeline to keep everything, got %d", len(got))
	}
}
