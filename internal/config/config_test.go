package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(env(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/cjudge.db", cfg.DBPath)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "gcc:latest", cfg.Sandbox.Image)
	assert.Equal(t, int64(128*1024*1024), cfg.Sandbox.MemoryBytes)
	assert.Equal(t, 0.5, cfg.Sandbox.CPUs)
	assert.Equal(t, int64(50), cfg.Sandbox.PidsLimit)
	assert.Equal(t, int64(10*1024*1024), cfg.Sandbox.TmpfsBytes)
	assert.Equal(t, 10*time.Second, cfg.Limits.RunDefaultTimeout)
	assert.Equal(t, 30*time.Second, cfg.Limits.RunMaxTimeout)
	assert.Equal(t, 5*time.Second, cfg.Limits.JudgeTimeout)
	assert.Equal(t, 90*time.Second, cfg.Limits.JudgePassTimeout)
	assert.Equal(t, int64(10*1024*1024), cfg.Limits.OutputBufferBytes)
	assert.Equal(t, 50000, cfg.Limits.CodeMaxLength)
	assert.False(t, cfg.SecurityVerdict)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.Auth.GitHubCallbackURL)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"PORT":                   "9090",
		"LOG_LEVEL":              "debug",
		"SANDBOX_IMAGE":          "gcc:13",
		"SANDBOX_MEMORY":         "256m",
		"SANDBOX_CPUS":           "1.5",
		"SANDBOX_PIDS":           "64",
		"SANDBOX_TMPFS_SIZE":     "20MB",
		"SANDBOX_MAX_CONCURRENT": "8",
		"RUN_DEFAULT_TIMEOUT":    "3",
		"RUN_MAX_TIMEOUT":        "1m",
		"JUDGE_TIMEOUT":          "1500ms",
		"JUDGE_TOTAL_TIMEOUT":    "45",
		"OUTPUT_BUFFER_SIZE":     "1m",
		"CODE_MAX_LENGTH":        "1000",
		"JUDGE_SECURITY_VERDICT": "true",
		"JWT_SECRET":             "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "gcc:13", cfg.Sandbox.Image)
	assert.Equal(t, int64(256*1024*1024), cfg.Sandbox.MemoryBytes)
	assert.Equal(t, 1.5, cfg.Sandbox.CPUs)
	assert.Equal(t, int64(64), cfg.Sandbox.PidsLimit)
	assert.Equal(t, int64(20*1024*1024), cfg.Sandbox.TmpfsBytes)
	assert.Equal(t, 8, cfg.Sandbox.MaxConcurrent)
	assert.Equal(t, 3*time.Second, cfg.Limits.RunDefaultTimeout)
	assert.Equal(t, time.Minute, cfg.Limits.RunMaxTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Limits.JudgeTimeout)
	assert.Equal(t, 45*time.Second, cfg.Limits.JudgePassTimeout)
	assert.Equal(t, int64(1024*1024), cfg.Limits.OutputBufferBytes)
	assert.Equal(t, 1000, cfg.Limits.CodeMaxLength)
	assert.True(t, cfg.SecurityVerdict)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "http://localhost:9090/auth/github/callback", cfg.Auth.GitHubCallbackURL)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "eighty"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"bad memory", map[string]string{"SANDBOX_MEMORY": "lots"}},
		{"bad cpus", map[string]string{"SANDBOX_CPUS": "half"}},
		{"zero pids", map[string]string{"SANDBOX_PIDS": "0"}},
		{"bad timeout", map[string]string{"JUDGE_TIMEOUT": "soon"}},
		{"default above max", map[string]string{"RUN_DEFAULT_TIMEOUT": "40"}},
		{"pass shorter than a case", map[string]string{"JUDGE_TOTAL_TIMEOUT": "2"}},
		{"bad bool", map[string]string{"JUDGE_SECURITY_VERDICT": "maybe"}},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(env(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReportsFirstBadVariable(t *testing.T) {
	_, err := load(env(map[string]string{
		"PORT":         "x",
		"SANDBOX_CPUS": "y",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}
