// Package config loads the service configuration from environment variables.
//
// Every setting has a default, so the server runs unconfigured on a laptop
// with Docker installed. Sizes accept the human forms Docker itself accepts
// ("128m", "10MB", "1g") and are parsed with github.com/docker/go-units.
//
// The result is a plain struct. Nothing in this package is global: main
// calls Load once and hands the relevant pieces to the sandbox, the judge
// and the HTTP server at construction time.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Config is the full set of tunables.
type Config struct {
	Port     int
	DBPath   string
	LogLevel slog.Level

	// SeedFile is a JSON problem catalog imported at startup, if set.
	SeedFile string

	Sandbox SandboxConfig
	Limits  LimitsConfig
	Auth    AuthConfig

	// SecurityVerdict makes the judge report screener rejections as
	// "security_rejected" instead of "compile_error".
	SecurityVerdict bool

	RateLimitRPS   float64
	RateLimitBurst int
}

// SandboxConfig describes the container every submission runs in.
type SandboxConfig struct {
	Image         string
	MemoryBytes   int64
	CPUs          float64
	PidsLimit     int64
	TmpfsBytes    int64
	MaxConcurrent int
	WorkRoot      string // parent directory of per-run workspaces; "" means os.TempDir()
}

// LimitsConfig bounds what a single request may ask for.
type LimitsConfig struct {
	RunDefaultTimeout time.Duration
	RunMaxTimeout     time.Duration
	JudgeTimeout      time.Duration
	JudgePassTimeout  time.Duration // whole judge request, all cases together
	OutputBufferBytes int64
	CodeMaxLength     int
}

// AuthConfig is optional. An empty JWTSecret disables login entirely.
type AuthConfig struct {
	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	AdminKeyHash       string
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Port:     8080,
		DBPath:   "data/cjudge.db",
		LogLevel: slog.LevelInfo,
		Sandbox: SandboxConfig{
			Image:         "gcc:latest",
			MemoryBytes:   128 * units.MiB,
			CPUs:          0.5,
			PidsLimit:     50,
			TmpfsBytes:    10 * units.MiB,
			MaxConcurrent: 4,
		},
		Limits: LimitsConfig{
			RunDefaultTimeout: 10 * time.Second,
			RunMaxTimeout:     30 * time.Second,
			JudgeTimeout:      5 * time.Second,
			JudgePassTimeout:  90 * time.Second,
			OutputBufferBytes: 10 * units.MiB,
			CodeMaxLength:     50000,
		},
		RateLimitRPS:   2,
		RateLimitBurst: 5,
	}
}

// Load reads the environment on top of Default.
func Load() (Config, error) {
	return load(os.Getenv)
}

// load takes the lookup function so tests can feed a map instead of
// mutating the process environment.
func load(getenv func(string) string) (Config, error) {
	cfg := Default()
	p := parser{getenv: getenv}

	cfg.Port = p.int("PORT", cfg.Port)
	cfg.DBPath = p.string("DB_PATH", cfg.DBPath)
	cfg.LogLevel = p.level("LOG_LEVEL", cfg.LogLevel)
	cfg.SeedFile = p.string("PROBLEMS_SEED_FILE", cfg.SeedFile)

	cfg.Sandbox.Image = p.string("SANDBOX_IMAGE", cfg.Sandbox.Image)
	cfg.Sandbox.MemoryBytes = p.ram("SANDBOX_MEMORY", cfg.Sandbox.MemoryBytes)
	cfg.Sandbox.CPUs = p.float("SANDBOX_CPUS", cfg.Sandbox.CPUs)
	cfg.Sandbox.PidsLimit = int64(p.int("SANDBOX_PIDS", int(cfg.Sandbox.PidsLimit)))
	cfg.Sandbox.TmpfsBytes = p.ram("SANDBOX_TMPFS_SIZE", cfg.Sandbox.TmpfsBytes)
	cfg.Sandbox.MaxConcurrent = p.int("SANDBOX_MAX_CONCURRENT", cfg.Sandbox.MaxConcurrent)
	cfg.Sandbox.WorkRoot = p.string("SANDBOX_WORK_ROOT", cfg.Sandbox.WorkRoot)

	cfg.Limits.RunDefaultTimeout = p.seconds("RUN_DEFAULT_TIMEOUT", cfg.Limits.RunDefaultTimeout)
	cfg.Limits.RunMaxTimeout = p.seconds("RUN_MAX_TIMEOUT", cfg.Limits.RunMaxTimeout)
	cfg.Limits.JudgeTimeout = p.seconds("JUDGE_TIMEOUT", cfg.Limits.JudgeTimeout)
	cfg.Limits.JudgePassTimeout = p.seconds("JUDGE_TOTAL_TIMEOUT", cfg.Limits.JudgePassTimeout)
	cfg.Limits.OutputBufferBytes = p.ram("OUTPUT_BUFFER_SIZE", cfg.Limits.OutputBufferBytes)
	cfg.Limits.CodeMaxLength = p.int("CODE_MAX_LENGTH", cfg.Limits.CodeMaxLength)

	cfg.SecurityVerdict = p.bool("JUDGE_SECURITY_VERDICT", cfg.SecurityVerdict)
	cfg.RateLimitRPS = p.float("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = p.int("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.Auth = AuthConfig{
		JWTSecret:          getenv("JWT_SECRET"),
		GitHubClientID:     getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  getenv("GITHUB_CALLBACK_URL"),
		AdminKeyHash:       getenv("ADMIN_KEY_HASH"),
	}
	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that would make the sandbox unusable.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	case c.Sandbox.Image == "":
		return fmt.Errorf("config: SANDBOX_IMAGE must not be empty")
	case c.Sandbox.MemoryBytes <= 0:
		return fmt.Errorf("config: SANDBOX_MEMORY must be positive")
	case c.Sandbox.CPUs <= 0:
		return fmt.Errorf("config: SANDBOX_CPUS must be positive")
	case c.Sandbox.PidsLimit <= 0:
		return fmt.Errorf("config: SANDBOX_PIDS must be positive")
	case c.Sandbox.MaxConcurrent <= 0:
		return fmt.Errorf("config: SANDBOX_MAX_CONCURRENT must be positive")
	case c.Limits.RunDefaultTimeout <= 0 || c.Limits.RunMaxTimeout <= 0 || c.Limits.JudgeTimeout <= 0:
		return fmt.Errorf("config: timeouts must be positive")
	case c.Limits.JudgePassTimeout < c.Limits.JudgeTimeout:
		return fmt.Errorf("config: JUDGE_TOTAL_TIMEOUT (%s) is shorter than JUDGE_TIMEOUT (%s)",
			c.Limits.JudgePassTimeout, c.Limits.JudgeTimeout)
	case c.Limits.RunDefaultTimeout > c.Limits.RunMaxTimeout:
		return fmt.Errorf("config: RUN_DEFAULT_TIMEOUT (%s) exceeds RUN_MAX_TIMEOUT (%s)",
			c.Limits.RunDefaultTimeout, c.Limits.RunMaxTimeout)
	case c.Limits.OutputBufferBytes <= 0:
		return fmt.Errorf("config: OUTPUT_BUFFER_SIZE must be positive")
	case c.Limits.CodeMaxLength <= 0:
		return fmt.Errorf("config: CODE_MAX_LENGTH must be positive")
	case c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0:
		return fmt.Errorf("config: rate limit must be positive")
	}
	return nil
}

// parser remembers the first error so Load can read every variable in a
// straight line and check once at the end.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) string(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

// seconds accepts either a bare number of seconds ("10") or a Go duration ("1500ms").
func (p *parser) seconds(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

// ram parses Docker-style binary sizes: "128m" and "128MB" are both 128 MiB.
func (p *parser) ram(key string, def int64) int64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := units.RAMInBytes(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) level(key string, def slog.Level) slog.Level {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
		p.fail(key, v, err)
		return def
	}
	return l
}
