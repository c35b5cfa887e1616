package agent

import (
	"context"
	"fmt"

	"github.com/scipunch/editorhub/agent/summary"
	"github.com/scipunch/editorhub/config"
)

// InitAgents creates agents based on the requested agent types.
// It fails fast if any agent initialization fails (e.g., missing credentials, invalid prompts).
// Returns a map of agent name -> agent instance.
// All agents are automatically wrapped with retry logic (exponential backoff, 5-minute timeout).
func InitAgents(ctx context.Context, agentTypes []string, creds config.GeminiCredentials) (map[string]Agent, error) {
	agents := make(map[string]Agent)
	retryConfig := DefaultRetryConfig()

	for _, agentType := range agentTypes {
		var baseAgent Agent
		var err error

		switch agentType {
		case "summary":
			baseAgent, err = summary.New(ctx, creds)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize summary agent: %w", err)
			}
		default:
			return nil, fmt.Errorf("unknown agent type: %s", agentType)
		}

		agents[agentType] = WithRetry(baseAgent, retryConfig)
	}

	return agents, nil
}

// AgentTypes lists the agents the digest configuration asks for.
func AgentTypes(cfg config.DigestConfig) []string {
	if cfg.Agent == "" {
		return nil
	}
	return []string{cfg.Agent}
}
