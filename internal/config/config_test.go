package config_test

import (
	"testing"

	"github.com/arcsong/arcsong/internal/config"
)

func TestLogLevelIsValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		want  bool
	}{
		{config.LogDebug, true},
		{config.LogInfo, true},
		{config.LogWarn, true},
		{config.LogError, true},
		{config.LogLevel("verbose"), false},
		{config.LogLevel(""), false},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSessionBackendIsValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		backend config.SessionBackend
		want    bool
	}{
		{config.BackendMemory, true},
		{config.BackendPostgres, true},
		{config.BackendRedis, true},
		{config.SessionBackend("sqlite"), false},
		{config.SessionBackend(""), false},
	}
	for _, tt := range tests {
		if got := tt.backend.IsValid(); got != tt.want {
			t.Errorf("SessionBackend(%q).IsValid() = %v, want %v", tt.backend, got, tt.want)
		}
	}
}
