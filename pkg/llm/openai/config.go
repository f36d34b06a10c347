package openai

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// OpenAIConfig holds the OpenAI client settings. Defaults suit identifier
// lookups: low temperature, short structured completions.
type OpenAIConfig struct {
	APIKey      string
	Logger      *logrus.Logger
	Temperature float64
	MaxTokens   int
	Model       string
}

// NewOpenAIConfig creates an OpenAIConfig from environment variables. The
// process entry point loads .env before this runs.
func NewOpenAIConfig() (*OpenAIConfig, error) {
	config := &OpenAIConfig{
		APIKey: os.Getenv("OPENAI_API_KEY"),
		Model:  os.Getenv("OPENAI_MODEL"),
		Logger: logrus.New(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks settings and applies defaults.
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 600
	}
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	return nil
}
