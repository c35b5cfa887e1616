package feed

import (
	"log/slog"
	"strings"

	"golang.org/x/mod/semver"
)

// Targeting restricts an item to client platforms and an editor version
// range. Empty fields match everything.
type Targeting struct {
	Platforms  []string
	MinVersion string
	MaxVersion string
}

// Matches reports whether a client on platform running version should see
// the item. An empty platform or version skips that check. Bounds that are
// not valid semantic versions are ignored.
func (t Targeting) Matches(platform, version string) bool {
	if platform != "" && len(t.Platforms) > 0 {
		found := false
		for _, p := range t.Platforms {
			if strings.EqualFold(p, platform) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if version == "" {
		return true
	}
	v := CanonicalVersion(version)
	if v == "" {
		slog.Debug("client version is not semantic, skipping version targeting", "version", version)
		return true
	}
	if lo := CanonicalVersion(t.MinVersion); lo != "" && semver.Compare(v, lo) < 0 {
		return false
	}
	if hi := CanonicalVersion(t.MaxVersion); hi != "" && semver.Compare(v, hi) > 0 {
		return false
	}
	return true
}

// CanonicalVersion normalizes "5.3", "v5.3.1" or "5.3.1-preview" to the
// canonical semver form, returning "" for anything else.
func CanonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
