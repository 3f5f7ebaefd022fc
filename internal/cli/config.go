package cli

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvChainsDir     = "CHAINFLOW_DIR"
	EnvStore         = "CHAINFLOW_STORE"
	EnvStorePath     = "CHAINFLOW_STORE_PATH"
	EnvRedisURL      = "CHAINFLOW_REDIS_URL"
	EnvToolsPath     = "CHAINFLOW_TOOLS"
	EnvChatTool      = "CHAINFLOW_CHAT_TOOL"
	EnvEncryptionKey = "CHAINFLOW_ENCRYPTION_KEY"
	EnvFallbackKeys  = "CHAINFLOW_ENCRYPTION_FALLBACK_KEYS"
	EnvMaskPatterns  = "CHAINFLOW_MASK_PATTERNS"
	EnvDebug         = "CHAINFLOW_DEBUG"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config selects where definitions, tools and run snapshots live.
type Config struct {
	ChainsDir string
	Store     string
	StorePath string
	RedisURL  string
	ToolsPath string

	// ChatTool names the process tool answering router prompts.
	ChatTool string

	// EncryptionKey enables at-rest encryption of snapshots. It is either 32
	// raw bytes or their base64 encoding.
	EncryptionKey string
	FallbackKeys  []string

	// MaskPatterns are regexps of memory keys whose values are masked.
	MaskPatterns []string

	Debug bool
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		ChainsDir: ".",
		Store:     StoreFile,
		ToolsPath: "tools.yaml",
	}
}

// ConfigFromEnv overlays the CHAINFLOW_* variables on DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	setString(&cfg.ChainsDir, EnvChainsDir)
	setString(&cfg.Store, EnvStore)
	setString(&cfg.StorePath, EnvStorePath)
	setString(&cfg.RedisURL, EnvRedisURL)
	setString(&cfg.ToolsPath, EnvToolsPath)
	setString(&cfg.ChatTool, EnvChatTool)
	setString(&cfg.EncryptionKey, EnvEncryptionKey)
	cfg.FallbackKeys = splitList(os.Getenv(EnvFallbackKeys))
	cfg.MaskPatterns = splitList(os.Getenv(EnvMaskPatterns))
	if v, err := strconv.ParseBool(os.Getenv(EnvDebug)); err == nil {
		cfg.Debug = v
	}
	if cfg.RedisURL != "" && os.Getenv(EnvStore) == "" {
		cfg.Store = StoreRedis
	}
	return cfg
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
