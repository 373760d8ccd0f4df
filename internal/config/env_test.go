package config_test

import (
	"strings"
	"testing"

	"github.com/arcsong/arcsong/internal/config"
)

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("ARCSONG_TEST_KEY", "sk-from-env")
	yaml := `
providers:
  llm:
    name: openai
    api_key: ${ARCSONG_TEST_KEY}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want the expanded env value", cfg.Providers.LLM.APIKey)
	}
}
