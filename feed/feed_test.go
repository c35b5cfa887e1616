package feed

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestFeed_IsValid(t *testing.T) {
	valid := Announcement{ID: "a", Title: "A", URL: "https://example.com"}
	invalid := Announcement{ID: "b"}

	tests := []struct {
		name string
		feed Feed[Announcement]
		want bool
	}{
		{"no timestamp", Feed[Announcement]{Items: []Announcement{valid}}, false},
		{"no items", Feed[Announcement]{LastUpdated: NewTime(fixedNow())}, false},
		{"only invalid items", Feed[Announcement]{LastUpdated: NewTime(fixedNow()), Items: []Announcement{invalid}}, false},
		{"one valid item", Feed[Announcement]{LastUpdated: NewTime(fixedNow()), Items: []Announcement{invalid, valid}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.feed.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChangelog_Valid(t *testing.T) {
	if (Changelog{ID: "1", Version: "1.0"}).Valid() {
		t.Error("changelog without changes should be invalid")
	}
	if !(Changelog{ID: "1", Version: "1.0", Changes: []string{"fix"}}).Valid() {
		t.Error("complete changelog should be valid")
	}
}

func TestFeed_RoundTripAnnouncements(t *testing.T) {
	original := Feed[Announcement]{
		Version:     "1.0",
		LastUpdated: NewTime(fixedNow()),
		Items: []Announcement{{
			ID:              "welcome",
			Type:            "news",
			Title:           "Welcome",
			Description:     "Hello **editor**",
			URL:             "https://example.com/welcome",
			ThumbnailURL:    "https://example.com/thumb.png",
			Date:            date(t, "2024-05-01T10:00:00Z"),
			Priority:        2,
			Tags:            []string{"release"},
			TargetPlatforms: []string{"Windows", "Mac"},
			MinVersion:      "5.1",
			MaxVersion:      "5.4",
		}},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"announcements"`) {
		t.Errorf("expected announcements collection key in %s", data)
	}

	decoded, err := Decode[Announcement](data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !decoded.IsValid() {
		t.Error("decoded feed should be valid")
	}
	if !decoded.LastUpdated.Equal(original.LastUpdated.Time) {
		t.Errorf("lastUpdated mismatch: %v vs %v", decoded.LastUpdated, original.LastUpdated)
	}
	decoded.LastUpdated = original.LastUpdated
	decoded.Items[0].Date = original.Items[0].Date
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestFeed_RoundTripChangelogs(t *testing.T) {
	original := Feed[Changelog]{
		Version:     "1.0",
		LastUpdated: NewTime(fixedNow()),
		Items: []Changelog{{
			ID:      "2.0.0",
			Version: "2.0.0",
			Date:    date(t, "2024-06-01"),
			Changes: []string{"New dock layout", "Faster sign-in"},
			URL:     "https://example.com/changes/2.0.0",
		}},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	decoded, err := Decode[Changelog](data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Items) != 1 || decoded.Items[0].Version != "2.0.0" {
		t.Fatalf("unexpected items: %+v", decoded.Items)
	}
	if !decoded.Items[0].Date.Equal(original.Items[0].Date.Time) {
		t.Errorf("date mismatch: %v", decoded.Items[0].Date)
	}
	if !reflect.DeepEqual(decoded.Items[0].Changes, original.Items[0].Changes) {
		t.Errorf("changes mismatch: %v", decoded.Items[0].Changes)
	}
}

func TestFeed_UnsetLastUpdatedIsInvalid(t *testing.T) {
	data := []byte(`{"version":"1.0","announcements":[{"id":"a","title":"A","url":"u","date":"2024-01-01"}]}`)
	decoded, err := Decode[Announcement](data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.IsValid() {
		t.Error("feed without lastUpdated should be invalid")
	}
}

func TestTime_Formats(t *testing.T) {
	for _, s := range []string{"2024-01-02", "2024-01-02T03:04:05", "2024-01-02T03:04:05Z", "2024-01-02T03:04:05+02:00"} {
		t.Run(s, func(t *testing.T) {
			var ts Time
			if err := json.Unmarshal([]byte(`"`+s+`"`), &ts); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if ts.Year() != 2024 || ts.Month() != 1 {
				t.Errorf("unexpected time: %v", ts)
			}
		})
	}

	var ts Time
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestKinds_AreConstantCollectionKeys(t *testing.T) {
	const both = Announcements + "," + Changelogs
	if both != "announcements,changelogs" {
		t.Errorf("unexpected kinds %q", both)
	}
	if (Announcement{}).Collection() != Announcements || (Changelog{}).Collection() != Changelogs {
		t.Error("collection keys do not match the kind constants")
	}
}
