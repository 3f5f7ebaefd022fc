package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/pkg/adapters/file"
	"github.com/aretw0/chainflow/pkg/adapters/memory"
	"github.com/aretw0/chainflow/pkg/adapters/process"
	"github.com/aretw0/chainflow/pkg/adapters/redis"
	"github.com/aretw0/chainflow/pkg/persistence/middleware"
	"github.com/aretw0/chainflow/pkg/ports"
	"github.com/aretw0/chainflow/pkg/registry"
)

// LockPrefix namespaces the distributed run locks in redis.
const LockPrefix = "chainflow:"

// ErrUnknownStore is returned for a Store that is not memory, file or redis.
var ErrUnknownStore = errors.New("unknown store")

// Backend is the persistence selected by a Config.
type Backend struct {
	Store  ports.SnapshotStore
	Locker ports.DistributedLocker
	Close  func() error
}

// NewEngine initializes a chainflow engine with standard CLI conventions:
// definitions from cfg.ChainsDir, tools from cfg.ToolsPath and the store
// selected by cfg. The returned func releases the store.
func NewEngine(cfg Config, logger *slog.Logger, extra ...chainflow.Option) (*chainflow.Engine, func() error, error) {
	be, err := OpenBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	tools, err := process.LoadTools(resolveToolsPath(cfg))
	if err != nil {
		_ = be.Close()
		return nil, nil, err
	}
	procRunner := process.NewRunner(
		process.WithRegistry(tools),
		process.WithBaseDir(cfg.ChainsDir),
	)

	var chat ports.ChatClient
	if cfg.ChatTool != "" {
		client, err := process.NewChatClient(procRunner, cfg.ChatTool)
		if err != nil {
			_ = be.Close()
			return nil, nil, err
		}
		chat = client
	}

	reg := registry.NewRegistry()
	registry.RegisterBuiltins(reg, chat)
	process.RegisterTools(reg, procRunner)

	opts := []chainflow.Option{
		chainflow.WithLogger(logger),
		chainflow.WithStore(be.Store),
		chainflow.WithRegistry(reg),
	}
	if chat != nil {
		opts = append(opts, chainflow.WithChatClient(chat))
	}
	if be.Locker != nil {
		opts = append(opts, chainflow.WithLocker(be.Locker))
	}

	engine, err := chainflow.New(append(opts, extra...)...)
	if err != nil {
		_ = be.Close()
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	if err := engine.LoadDir(cfg.ChainsDir); err != nil {
		_ = be.Close()
		return nil, nil, fmt.Errorf("error loading chains from %s: %w", cfg.ChainsDir, err)
	}

	logger.Debug("engine ready", "chains", len(engine.Definitions()), "store", cfg.Store, "tools", len(tools))
	return engine, be.Close, nil
}

// OpenBackend builds the store of cfg wrapped in the masking and encryption
// middlewares it enables.
func OpenBackend(cfg Config) (*Backend, error) {
	be := &Backend{Close: func() error { return nil }}

	switch cfg.Store {
	case StoreMemory:
		be.Store = memory.NewStore()
	case StoreFile, "":
		path := cfg.StorePath
		if path == "" {
			path = filepath.Join(cfg.ChainsDir, ".chainflow", "runs")
		}
		be.Store = file.New(path)
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis store needs %s", EnvRedisURL)
		}
		redisOpts, err := backend.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := backend.NewClient(redisOpts)
		be.Store = redis.NewFromClient(client)
		be.Locker = redis.NewLocker(client, LockPrefix)
		be.Close = client.Close
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Store)
	}

	mws, err := storeMiddlewares(cfg)
	if err != nil {
		_ = be.Close()
		return nil, err
	}
	be.Store = middleware.Wrap(be.Store, mws...)
	return be, nil
}

// storeMiddlewares masks before encrypting, so the ciphertext never carries
// the masked values.
func storeMiddlewares(cfg Config) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.MaskPatterns) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.MaskPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if cfg.EncryptionKey != "" {
		active, err := parseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		var fallback [][]byte
		for _, k := range cfg.FallbackKeys {
			key, err := parseKey(k)
			if err != nil {
				return nil, fmt.Errorf("fallback key: %w", err)
			}
			fallback = append(fallback, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		})
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

func parseKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", middleware.ErrInvalidKey)
	}
	return key, nil
}

// resolveToolsPath prefers the tools file next to the chains when the
// configured relative path does not exist in the working directory.
func resolveToolsPath(cfg Config) string {
	if cfg.ToolsPath == "" || filepath.IsAbs(cfg.ToolsPath) {
		return cfg.ToolsPath
	}
	if _, err := os.Stat(cfg.ToolsPath); err == nil {
		return cfg.ToolsPath
	}
	return filepath.Join(cfg.ChainsDir, cfg.ToolsPath)
}
