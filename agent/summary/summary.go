// Package summary writes the "What's new" digest with Gemini through
// genkit. The prompt lives next to the code in digest.prompt.
package summary

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/scipunch/editorhub/config"
)

//go:embed *.prompt
var prompts embed.FS

const (
	agentName  = "summary"
	promptName = "digest"
)

// ErrEmptyDigest is returned when the model answers with nothing usable.
var ErrEmptyDigest = errors.New("model returned an empty digest")

// Agent renders the digest prompt against one Gemini model.
type Agent struct {
	prompt ai.Prompt
	model  string
}

// New loads the embedded prompt into a dedicated genkit instance.
func New(ctx context.Context, creds config.GeminiCredentials) (*Agent, error) {
	if !creds.IsValid() {
		return nil, errors.New("invalid Gemini credentials: API key and model must be set")
	}

	model := "googleai/" + creds.Model
	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: creds.APIKey}),
		genkit.WithPromptFS(prompts),
		genkit.WithPromptDir("."),
		genkit.WithDefaultModel(model),
	)

	prompt := genkit.LookupPrompt(g, promptName)
	if prompt == nil {
		return nil, fmt.Errorf("prompt %q is missing from the embedded files", promptName)
	}
	slog.Debug("digest agent ready", "model", model)

	return &Agent{prompt: prompt, model: model}, nil
}

func (a *Agent) Name() string {
	return agentName
}

// Process sends the announcement and changelog listing to the model and
// returns the digest markdown.
func (a *Agent) Process(ctx context.Context, content string) (string, error) {
	resp, err := a.prompt.Execute(ctx, ai.WithInput(map[string]any{"content": content}))
	if err != nil {
		return "", fmt.Errorf("failed to execute digest prompt on %s: %w", a.model, err)
	}
	return cleanDigest(resp.Text())
}

// cleanDigest strips whitespace and a wrapping markdown code fence, which
// Gemini sometimes adds around the whole answer.
func cleanDigest(text string) (string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```") && len(text) >= 6 {
		body := strings.TrimSuffix(text, "```")
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = strings.TrimPrefix(body, "```")
		}
		text = strings.TrimSpace(body)
	}
	if text == "" {
		return "", ErrEmptyDigest
	}
	return text, nil
}
