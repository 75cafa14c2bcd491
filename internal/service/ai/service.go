package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"hwgrader/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"google.golang.org/genai"
)

// NewChatModel builds the chat-completion backend selected by cfg.Provider.
// modelName overrides cfg.Model when non-empty, which lets the vision
// recognizer share the provider settings with a different model.
func NewChatModel(ctx context.Context, cfg config.LLMConfig, modelName string, timeout time.Duration) (model.BaseChatModel, error) {
	if modelName == "" {
		modelName = cfg.Model
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   modelName,
			APIKey:  cfg.APIKey,
			Timeout: timeout,
		})
	case config.ProviderGemini:
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case config.ProviderClaude:
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	case config.ProviderOllama:
		chatModel, err = NewOllamaChatModel(cfg.BaseURL, modelName, timeout)
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}
	return chatModel, nil
}

// NewOllamaChatModel connects to a local Ollama server. An empty host falls
// back to OLLAMA_HOST or the default local address.
func NewOllamaChatModel(host, modelName string, timeout time.Duration) (model.BaseChatModel, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse ollama host: %w", err)
		}
		hostURL = parsed
	}
	client := api.NewClient(hostURL, &http.Client{Timeout: timeout})
	return &ollamaChatModel{client: client, model: modelName}, nil
}
