// Package dependency wires core silverkite services using go.uber.org/dig.
package dependency

import (
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/dig"

	"github.com/silverkite/silverkite/internal/agent"
	"github.com/silverkite/silverkite/internal/bus"
	"github.com/silverkite/silverkite/internal/channels"
	"github.com/silverkite/silverkite/internal/config"
	"github.com/silverkite/silverkite/internal/cron"
	"github.com/silverkite/silverkite/internal/memory"
	"github.com/silverkite/silverkite/internal/providers"
	"github.com/silverkite/silverkite/internal/schema"
	"github.com/silverkite/silverkite/internal/session"
	"github.com/silverkite/silverkite/internal/store"
	"github.com/silverkite/silverkite/internal/tools"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	docs      *store.Store
	msgBus    bus.Bus
	runtime   *agent.Runtime
	compactor *agent.CompactionEngine
	sessions  *session.Manager
	channels  *channels.Manager
	cronSvc   *cron.Service
}

func (c *Container) Store() *store.Store                { return c.docs }
func (c *Container) MessageBus() bus.Bus                { return c.msgBus }
func (c *Container) Runtime() *agent.Runtime            { return c.runtime }
func (c *Container) Compactor() *agent.CompactionEngine { return c.compactor }
func (c *Container) Sessions() *session.Manager         { return c.sessions }
func (c *Container) Channels() *channels.Manager        { return c.channels }
func (c *Container) CronService() *cron.Service         { return c.cronSvc }

// Close releases held resources. Call it when the process is done.
func (c *Container) Close() error {
	return c.docs.Close()
}

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(newLogger); err != nil {
		return nil, err
	}
	if err := d.Provide(newDocumentStore); err != nil {
		return nil, err
	}
	if err := d.Provide(newMemoryStore); err != nil {
		return nil, err
	}
	if err := d.Provide(newSessionManager); err != nil {
		return nil, err
	}
	if err := d.Provide(newProviderRegistry); err != nil {
		return nil, err
	}
	if err := d.Provide(newMessageBus); err != nil {
		return nil, err
	}
	if err := d.Provide(newCronService); err != nil {
		return nil, err
	}
	if err := d.Provide(newToolRegistry); err != nil {
		return nil, err
	}
	if err := d.Provide(loadAgents); err != nil {
		return nil, err
	}
	if err := d.Provide(newPromptAssembler); err != nil {
		return nil, err
	}
	if err := d.Provide(newCompactionEngine); err != nil {
		return nil, err
	}
	if err := d.Provide(newRuntime); err != nil {
		return nil, err
	}
	if err := d.Provide(newChannelManager); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		docs *store.Store,
		msgBus bus.Bus,
		runtime *agent.Runtime,
		compactor *agent.CompactionEngine,
		sessions *session.Manager,
		chans *channels.Manager,
		cronSvc *cron.Service,
	) {
		result = &Container{
			docs:      docs,
			msgBus:    msgBus,
			runtime:   runtime,
			compactor: compactor,
			sessions:  sessions,
			channels:  chans,
			cronSvc:   cronSvc,
		}
	})
	return result, err
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newDocumentStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.StorePath())
}

func newMemoryStore(docs *store.Store, log *slog.Logger) *memory.Store {
	return memory.NewStore(docs, log)
}

func newSessionManager(cfg *config.Config, log *slog.Logger) (*session.Manager, error) {
	return session.NewManager(cfg.WorkspacePath(), log)
}

func newProviderRegistry(cfg *config.Config) *providers.Registry {
	settings := make(map[string]providers.Settings, len(cfg.Providers))
	for name, p := range cfg.Providers {
		settings[name] = providers.Settings{
			APIKey:         p.APIKey,
			APIBase:        p.APIBase,
			ContextLengths: p.ContextLengths,
		}
	}
	return providers.NewRegistry(settings)
}

func newMessageBus() bus.Bus {
	return bus.NewMessageBus(100)
}

func newCronService(log *slog.Logger) *cron.Service {
	return cron.NewService(filepath.Join(config.DataDir(), "cron", "jobs.json"), log)
}

func newToolRegistry(cfg *config.Config, docs *store.Store, mem *memory.Store, cronSvc *cron.Service, log *slog.Logger) *tools.Registry {
	registry := tools.NewRegistry(log)
	registry.Register(tools.NewMemoryTool(mem))
	registry.Register(tools.NewExecTool(cfg.WorkspacePath()))
	registry.Register(tools.NewQueryDatabaseTool(docs, tools.DefaultModels()))
	registry.Register(tools.NewSystemStatsTool(docs, tools.DefaultModels()))
	registry.Register(tools.NewRawDBQueryTool(docs))
	registry.Register(tools.NewWebSearchTool(cfg.Tools.Web.SearchAPIKey, cfg.Tools.Web.MaxResults))
	registry.Register(tools.NewWebFetchTool(0))
	registry.Register(tools.NewCronTool(cronSvc))
	return registry
}

func loadAgents(cfg *config.Config) (map[string]schema.AgentDefinition, error) {
	return config.LoadAgents(cfg.WorkspacePath(), cfg.Agents.Defaults)
}

func newPromptAssembler(mem *memory.Store, docs *store.Store) *agent.PromptAssembler {
	return agent.NewPromptAssembler(mem, docs)
}

func newCompactionEngine(
	agents map[string]schema.AgentDefinition,
	reg *providers.Registry,
	sessions *session.Manager,
	mem *memory.Store,
	log *slog.Logger,
) *agent.CompactionEngine {
	return agent.NewCompactionEngine(agents, reg, sessions, mem, log)
}

func newRuntime(
	agents map[string]schema.AgentDefinition,
	reg *providers.Registry,
	sessions *session.Manager,
	mem *memory.Store,
	toolReg *tools.Registry,
	prompts *agent.PromptAssembler,
	compactor *agent.CompactionEngine,
	log *slog.Logger,
) *agent.Runtime {
	return agent.NewRuntime(agents, reg, sessions, mem, toolReg, prompts, compactor, log)
}

func newChannelManager(cfg *config.Config, b bus.Bus, log *slog.Logger) *channels.Manager {
	return channels.NewManager(cfg, b, log)
}
