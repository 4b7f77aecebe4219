package cmd

import (
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/llm"
	"github.com/joescharf/tracker/internal/service"
)

// anthropicKey returns anthropic.api_key, falling back to ANTHROPIC_API_KEY.
func anthropicKey() string {
	if k := viper.GetString("anthropic.api_key"); k != "" {
		return k
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// typeSuggesterOption routes issue type suggestions through Claude when an
// Anthropic key is available. Without a key it returns nil and the issue
// service keeps its keyword suggester.
func typeSuggesterOption() service.IssueOption {
	key := anthropicKey()
	if key == "" {
		logger.Debug("type suggestions use keywords", "reason", "no anthropic key")
		return nil
	}
	model := viper.GetString("anthropic.model")
	logger.Debug("type suggestions use claude", "model", model)
	return service.WithTypeSuggester(llm.NewClient(key, model))
}
