// Package render writes the "What's new" panel shown in the editor's tool
// window.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scipunch/editorhub/feed"
)

//go:embed templates/*.html
var templates embed.FS

// PanelFile is the file name written by WriteFile.
const PanelFile = "index.html"

var panel = template.Must(template.New("panel.html").Funcs(template.FuncMap{
	"markup":    func(s string) template.HTML { return template.HTML(Markup(s)) },
	"thumbnail": thumbnail,
	"date":      formatDate,
}).ParseFS(templates, "templates/panel.html"))

// Page is the data behind one rendered panel.
type Page struct {
	Title         string
	GeneratedAt   time.Time
	Announcements []feed.Announcement
	Changelogs    []feed.Changelog

	// Digest is optional markup shown above the lists.
	Digest string

	// Stale marks content served from cache after a failed refresh.
	Stale bool
}

// Render executes the panel template.
func Render(w io.Writer, p Page) error {
	if p.Title == "" {
		p.Title = "What's new"
	}
	if err := panel.Execute(w, p); err != nil {
		return fmt.Errorf("failed to render panel with %w", err)
	}
	return nil
}

// WriteFile renders p into dir/index.html and returns the path.
func WriteFile(dir string, p Page) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory '%s' with %w", dir, err)
	}

	target := filepath.Join(dir, PanelFile)
	tmp, err := os.CreateTemp(dir, ".panel-*.html")
	if err != nil {
		return "", fmt.Errorf("failed to create panel file with %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Render(tmp, p); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write panel file with %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to move panel into place with %w", err)
	}

	slog.Info("panel rendered", "path", target, "announcements", len(p.Announcements), "changelogs", len(p.Changelogs))
	return target, nil
}

// thumbnail passes local media written by the telegram source through the
// template's URL sanitizer.
func thumbnail(raw string) template.URL {
	for _, scheme := range []string{"file://", "http://", "https://"} {
		if strings.HasPrefix(raw, scheme) {
			return template.URL(raw)
		}
	}
	return ""
}

func formatDate(t feed.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}
