package publisher

import (
	"encoding/json"
	"errors"
	"os"

	"kb_article_publisher/servicenow"
)

// Config holds the ServiceNow instance credentials plus optional LLM and
// server settings.
type Config struct {
	ServiceNow servicenow.Config `json:"servicenow"`
	LLM        *LLMConfig        `json:"llm,omitempty"`
	ServerAddr string            `json:"server_addr,omitempty"`
}

// LLMConfig selects and configures the generation backend.
type LLMConfig struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// LoadConfig reads JSON config from disk.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.ServiceNow.InstanceURL == "" {
		return Config{}, errors.New("config must include servicenow.instance_url")
	}
	return cfg, nil
}
