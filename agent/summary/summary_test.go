package summary

import (
	"context"
	"errors"
	"testing"

	"github.com/scipunch/editorhub/config"
)

func TestCleanDigest(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		err   error
	}{
		{"plain", "- Faster startup\n", "- Faster startup", nil},
		{"fenced with language", "```markdown\n- Faster startup\n- New brushes\n```", "- Faster startup\n- New brushes", nil},
		{"fenced without language", "```\n- Faster startup\n```", "- Faster startup", nil},
		{"inline code kept", "Use `--safe` mode", "Use `--safe` mode", nil},
		{"whitespace only", " \n\t", "", ErrEmptyDigest},
		{"empty fence", "```\n```", "", ErrEmptyDigest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanDigest(tt.input)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNew_RejectsMissingCredentials(t *testing.T) {
	if _, err := New(context.Background(), config.GeminiCredentials{}); err == nil {
		t.Error("expected an error without an API key and model")
	}
}
