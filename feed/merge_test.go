package feed

import (
	"reflect"
	"testing"
	"time"
)

func date(t *testing.T, s string) Time {
	t.Helper()
	parsed, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime(%q) failed: %v", s, err)
	}
	return parsed
}

func fixedNow() time.Time {
	return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
}

func TestMerge_AnnouncementDedupKeepsLowerPriority(t *testing.T) {
	a := Feed[Announcement]{Items: []Announcement{
		{ID: "launch", Title: "Launch", URL: "https://example.com/a", Priority: 5},
	}}
	b := Feed[Announcement]{Items: []Announcement{
		{ID: "launch", Title: "Launch (pinned)", URL: "https://example.com/b", Priority: 1},
	}}

	merged := Merge([]Feed[Announcement]{a, b}, MergeOptions{Deduplicate: true, Now: fixedNow})
	if len(merged.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(merged.Items))
	}
	if merged.Items[0].Priority != 1 {
		t.Errorf("expected priority 1 to win, got %d", merged.Items[0].Priority)
	}
	if merged.Items[0].Title != "Launch (pinned)" {
		t.Errorf("unexpected title: %s", merged.Items[0].Title)
	}
}

func TestMerge_ChangelogDedupKeepsLaterDate(t *testing.T) {
	a := Feed[Changelog]{Items: []Changelog{
		{ID: "1.2", Version: "1.2.0", Date: date(t, "2024-06-01"), Changes: []string{"later"}},
	}}
	b := Feed[Changelog]{Items: []Changelog{
		{ID: "1.2", Version: "1.2.0", Date: date(t, "2024-01-01"), Changes: []string{"earlier"}},
	}}

	merged := Merge([]Feed[Changelog]{b, a}, MergeOptions{Deduplicate: true, Now: fixedNow})
	if len(merged.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(merged.Items))
	}
	if got := merged.Items[0].Date.Format("2006-01-02"); got != "2024-06-01" {
		t.Errorf("expected 2024-06-01 entry to win, got %s", got)
	}
}

func TestMerge_TieKeepsFirstEncountered(t *testing.T) {
	first := Announcement{ID: "x", Title: "first", URL: "u", Priority: 3}
	second := Announcement{ID: "x", Title: "second", URL: "u", Priority: 3}

	merged := Merge([]Feed[Announcement]{
		{Items: []Announcement{first}},
		{Items: []Announcement{second}},
	}, MergeOptions{Deduplicate: true})

	if merged.Items[0].Title != "first" {
		t.Errorf("expected first encountered item to win a tie, got %s", merged.Items[0].Title)
	}
}

func TestMerge_WithoutDedupKeepsDuplicates(t *testing.T) {
	items := []Announcement{
		{ID: "x", Title: "a", URL: "u", Priority: 2},
		{ID: "x", Title: "b", URL: "u", Priority: 1},
	}
	merged := Merge([]Feed[Announcement]{{Items: items}}, MergeOptions{})
	if len(merged.Items) != 2 {
		t.Fatalf("expected duplicates to be kept, got %d items", len(merged.Items))
	}
}

func TestMerge_SortOrder(t *testing.T) {
	t.Run("announcements", func(t *testing.T) {
		items := []Announcement{
			{ID: "old-high", Priority: 1, Date: date(t, "2024-01-01")},
			{ID: "low", Priority: 9, Date: date(t, "2024-09-01")},
			{ID: "new-high", Priority: 1, Date: date(t, "2024-05-01")},
		}
		merged := Merge([]Feed[Announcement]{{Items: items}}, MergeOptions{})
		var ids []string
		for _, item := range merged.Items {
			ids = append(ids, item.ID)
		}
		want := []string{"new-high", "old-high", "low"}
		if !reflect.DeepEqual(ids, want) {
			t.Errorf("got order %v, want %v", ids, want)
		}
	})

	t.Run("changelogs", func(t *testing.T) {
		items := []Changelog{
			{ID: "a", Date: date(t, "2023-01-01")},
			{ID: "b", Date: date(t, "2024-03-01")},
			{ID: "c", Date: date(t, "2023-06-01")},
		}
		merged := Merge([]Feed[Changelog]{{Items: items}}, MergeOptions{})
		var ids []string
		for _, item := range merged.Items {
			ids = append(ids, item.ID)
		}
		want := []string{"b", "c", "a"}
		if !reflect.DeepEqual(ids, want) {
			t.Errorf("got order %v, want %v", ids, want)
		}
	})
}

func TestMerge_Idempotent(t *testing.T) {
	sources := []Feed[Announcement]{
		{Items: []Announcement{
			{ID: "a", Title: "A", URL: "u", Priority: 2, Date: date(t, "2024-02-01")},
			{ID: "b", Title: "B", URL: "u", Priority: 1, Date: date(t, "2024-03-01")},
		}},
		{Items: []Announcement{
			{ID: "a", Title: "A2", URL: "u", Priority: 1, Date: date(t, "2024-02-02")},
			{ID: "c", Title: "C", URL: "u", Priority: 3, Date: date(t, "2024-01-01")},
		}},
	}
	opts := MergeOptions{Deduplicate: true, Now: fixedNow}

	first := Merge(sources, opts)
	second := Merge(sources, opts)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("merging the same sources twice differs:\n%+v\n%+v", first, second)
	}

	again := Merge([]Feed[Announcement]{first}, opts)
	if !reflect.DeepEqual(first.Items, again.Items) {
		t.Errorf("re-merging a merged feed changed its items")
	}
}

func TestMerge_StampsVersionAndTime(t *testing.T) {
	merged := Merge([]Feed[Changelog]{}, MergeOptions{Now: fixedNow})
	if merged.Version != MergedVersion {
		t.Errorf("expected version %s, got %s", MergedVersion, merged.Version)
	}
	if !merged.LastUpdated.Equal(fixedNow()) {
		t.Errorf("expected LastUpdated %v, got %v", fixedNow(), merged.LastUpdated)
	}
}
