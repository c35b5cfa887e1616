package feed

import (
	"strings"
	"time"
)

// Changelog describes the changes shipped in one release.
type Changelog struct {
	ID              string   `json:"id"`
	Version         string   `json:"version"`
	Date            Time     `json:"date"`
	Changes         []string `json:"changes"`
	URL             string   `json:"url,omitempty"`
	TargetPlatforms []string `json:"targetPlatforms,omitempty"`
}

func (c Changelog) Key() string { return c.ID }

// Valid requires an ID, a version and at least one change line.
func (c Changelog) Valid() bool {
	return c.ID != "" && c.Version != "" && len(c.Changes) > 0
}

func (c Changelog) Text() string {
	return strings.TrimSpace(c.Version + "\n" + strings.Join(c.Changes, "\n"))
}

func (c Changelog) Labels() []string     { return nil }
func (c Changelog) Published() time.Time { return c.Date.Time }
func (c Changelog) Collection() Kind     { return Changelogs }

func (c Changelog) Targets() Targeting {
	return Targeting{Platforms: c.TargetPlatforms}
}

// Supersedes keeps the later release date on duplicate IDs.
func (c Changelog) Supersedes(other Changelog) bool {
	return c.Date.After(other.Date.Time)
}

// Before orders newest first.
func (c Changelog) Before(other Changelog) bool {
	return c.Date.After(other.Date.Time)
}
