package llm

import (
	"fmt"
	"time"

	"saged/internal/config"
	"saged/internal/logging"
)

// NewClientFromConfig builds the client named by cfg.LLM.Provider.
// Providers zai, openai, xai and gemini all speak the OpenAI-compatible
// surface and share ChatClient; anthropic gets its own wire format.
func NewClientFromConfig(cfg *config.Config) (Client, error) {
	llmCfg := cfg.LLM
	if llmCfg.APIKey == "" {
		// Fall back to keys stored in .saged/config.json.
		if user, err := config.LoadUserConfig(config.DefaultUserConfigPath()); err == nil {
			if provider, key := user.GetActiveProvider(); key != "" {
				llmCfg.Provider = provider
				llmCfg.APIKey = key
				if user.Model != "" {
					llmCfg.Model = user.Model
				}
			}
		}
	}
	if llmCfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", llmCfg.Provider)
	}

	base := Config{
		APIKey:      llmCfg.APIKey,
		BaseURL:     llmCfg.BaseURL,
		Model:       llmCfg.Model,
		Timeout:     cfg.GetLLMTimeout(),
		MaxRetries:  llmCfg.MaxRetries,
		RateLimit:   time.Duration(llmCfg.RateLimitMs) * time.Millisecond,
		Temperature: llmCfg.Temperature,
		MaxTokens:   llmCfg.MaxTokens,
	}

	logging.LLM("Creating LLM client: provider=%s, model=%s", llmCfg.Provider, llmCfg.Model)

	switch llmCfg.Provider {
	case "zai", "":
		if base.BaseURL == "" {
			base.BaseURL = "https://api.z.ai/api/paas/v4"
		}
		return NewChatClient(base), nil

	case "openai":
		if base.BaseURL == "" {
			base.BaseURL = "https://api.openai.com/v1"
		}
		return NewChatClient(base), nil

	case "xai":
		if base.BaseURL == "" {
			base.BaseURL = "https://api.x.ai/v1"
		}
		return NewChatClient(base), nil

	case "gemini":
		// Gemini exposes an OpenAI-compatible endpoint under /openai.
		if base.BaseURL == "" {
			base.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
		}
		return NewChatClient(base), nil

	case "anthropic":
		return NewAnthropicClient(base), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", llmCfg.Provider)
	}
}
