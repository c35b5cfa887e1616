package feed

import (
	"strings"
	"time"
)

// DefaultPriority is used for announcements that do not set one. Sources
// treat a priority of 0 as unset.
const DefaultPriority = 100

// Announcement is a news item shown in the tool window and welcome panel.
type Announcement struct {
	ID              string   `json:"id"`
	Type            string   `json:"type,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	URL             string   `json:"url"`
	ThumbnailURL    string   `json:"thumbnailUrl,omitempty"`
	Date            Time     `json:"date"`
	Priority        int      `json:"priority,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	TargetPlatforms []string `json:"targetPlatforms,omitempty"`
	MinVersion      string   `json:"minVersion,omitempty"`
	MaxVersion      string   `json:"maxVersion,omitempty"`
}

func (a Announcement) Key() string { return a.ID }

// Valid requires an ID, a title and a link.
func (a Announcement) Valid() bool {
	return a.ID != "" && a.Title != "" && a.URL != ""
}

func (a Announcement) Text() string {
	return strings.TrimSpace(a.Title + " " + a.Description)
}

func (a Announcement) Labels() []string     { return a.Tags }
func (a Announcement) Published() time.Time { return a.Date.Time }
func (a Announcement) Collection() Kind     { return Announcements }

func (a Announcement) Targets() Targeting {
	return Targeting{
		Platforms:  a.TargetPlatforms,
		MinVersion: a.MinVersion,
		MaxVersion: a.MaxVersion,
	}
}

// WithDefaults fills in the priority when it is unset.
func (a Announcement) WithDefaults() Announcement {
	if a.Priority == 0 {
		a.Priority = DefaultPriority
	}
	return a
}

// Supersedes keeps the numerically lower priority on duplicate IDs.
func (a Announcement) Supersedes(other Announcement) bool {
	return a.Priority < other.Priority
}

// Before orders by priority ascending, newest first within a priority.
func (a Announcement) Before(other Announcement) bool {
	if a.Priority != other.Priority {
		return a.Priority < other.Priority
	}
	return a.Date.After(other.Date.Time)
}
