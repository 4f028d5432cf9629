package agentrun

import (
	"fmt"
	"path/filepath"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/config"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/gate"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/memory"
	memsqlite "github.com/hupe1980/agentrun/memory/sqlite"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/model/anthropic"
	"github.com/hupe1980/agentrun/model/openai"
	"github.com/hupe1980/agentrun/runner"
	"github.com/hupe1980/agentrun/session"
	sesssqlite "github.com/hupe1980/agentrun/session/sqlite"
)

// NewModel builds the model adapter selected by cfg.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	var m model.Model

	switch cfg.Provider {
	case config.ProviderOpenAI:
		m = openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature != 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens != 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey()
		})
	case config.ProviderAnthropic:
		m = anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			if cfg.Temperature != 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens != 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey()
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}

	if cfg.Retries > 1 {
		m = model.WithRetry(m, cfg.Retries, 500*time.Millisecond)
	}

	return m, nil
}

// Stores holds the stores opened for a storage configuration.
type Stores struct {
	Sessions core.SessionStore
	Memories core.MemoryStore
	closers  []func() error
}

// Close closes every store that holds a resource.
func (s *Stores) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// OpenStores opens the stores of cfg. The sqlite driver keeps memories in
// memories.db next to the session database; the other drivers keep them in
// process memory.
func OpenStores(cfg config.StorageConfig) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return &Stores{Sessions: session.NewInMemoryStore(), Memories: memory.NewInMemoryStore()}, nil

	case config.DriverFile:
		fs, err := session.NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Stores{Sessions: fs, Memories: memory.NewInMemoryStore()}, nil

	case config.DriverSQLite:
		ss, err := sesssqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		ms, err := memsqlite.New(filepath.Join(filepath.Dir(cfg.Path), "memories.db"))
		if err != nil {
			_ = ss.Close()
			return nil, err
		}
		return &Stores{Sessions: ss, Memories: ms, closers: []func() error{ss.Close, ms.Close}}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// FromConfig creates an AgentRun for target from cfg: stores, logger, gate
// escalations, limits and memory extraction. optFns run last.
func FromConfig(cfg *config.Config, target agent.Target, optFns ...func(o *Options)) (*AgentRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stores, err := OpenStores(cfg.Storage)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.LoggerConfig()).WithComponent("agentrun")

	return New(target, func(o *Options) {
		o.MaxModelCalls = cfg.Runner.MaxModelCalls
		o.MaxToolCalls = cfg.Runner.MaxToolCalls
		o.ToolParallelism = cfg.Runner.ToolParallelism
		o.EventBufferSize = cfg.Runner.EventBuffer
		o.SessionStore = stores.Sessions
		o.MemoryStore = stores.Memories
		o.Gate = gate.New(func(g *gate.Options) { g.Escalations = cfg.Gate.Escalate })
		o.Logger = logger
		if cfg.Memory.Enabled {
			o.MemoryExtractor = runner.NewModelExtractor(target.Model())
		}
		o.closers = append(o.closers, stores.Close)

		for _, fn := range optFns {
			fn(o)
		}
	}), nil
}
