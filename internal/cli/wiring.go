package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gasdesk/agent-server/internal/agent/chat"
	"github.com/gasdesk/agent-server/internal/agent/graph"
	"github.com/gasdesk/agent-server/internal/agent/graph/nodes"
	"github.com/gasdesk/agent-server/internal/agent/mcp"
	"github.com/gasdesk/agent-server/internal/agent/memory"
	"github.com/gasdesk/agent-server/internal/agent/metrics"
	"github.com/gasdesk/agent-server/internal/agent/model"
	"github.com/gasdesk/agent-server/internal/agent/repo"
	"github.com/gasdesk/agent-server/internal/agent/tools"
	"github.com/gasdesk/agent-server/internal/agent/tools/gasflow"
	"github.com/gasdesk/agent-server/internal/agent/tools/naturalgas"
	"github.com/gasdesk/agent-server/internal/agent/tools/regulation"
)

const naturalGasInitTimeout = 15 * time.Second

// app is the fully wired service plus what must be released on exit.
type app struct {
	service  *chat.Service
	tools    *tools.Registry
	registry *prometheus.Registry
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg AppConfig) (_ *app, err error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}

	a := &app{registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, backend.Close)
	store := memory.NewStore(backend)

	models, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		DecisionConfig: &cfg.Decision,
		RespConfig:     &cfg.Response,
	})
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(tools.WithTimeout(cfg.Loop.ToolTimeout), tools.WithMetrics(m))
	if err := registerTools(ctx, a, cfg, registry, models); err != nil {
		return nil, err
	}
	a.tools = registry

	loop, err := graph.Build(ctx, graph.Deps{
		DecisionModel: models.Decision,
		ResponseModel: models.Response,
		Tools:         registry,
		History:       store,
		Metrics:       m,
		Loop: graph.Config{
			MaxIterations: cfg.Loop.MaxIterations,
			DecisionTurns: cfg.Loop.DecisionHistoryTurns,
			FinalizeTurns: cfg.Loop.FinalizeHistoryTurns,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build control loop: %w", err)
	}

	strategies := memory.NewStrategies(cfg.Memory.SimpleTurns, cfg.Memory.HybridTurns, memory.ParsePIIMode(cfg.Memory.PIIMode))
	a.service = chat.NewService(store, loop, strategies, chat.WithDefaultMode(model.MemoryMode(cfg.Memory.Mode)))
	return a, nil
}

func openBackend(ctx context.Context, cfg AppConfig) (repo.Backend, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "file", "":
		return repo.NewFileBackend(cfg.Storage.DataDir)
	case "redis":
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, err
		}
		log().Info().Str("url", cfg.Redis.URL).Msg("Connected to Redis successfully")
		return repo.NewRedisBackend(rdb, cfg.Memory.SessionTTL), nil
	case "sqlite":
		db, err := cfg.SQLite.Open(ctx)
		if err != nil {
			return nil, err
		}
		b, err := repo.NewSQLiteBackend(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return b, nil
	case "memory":
		return repo.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
	}
}

// registerTools fills the registry. The regulation corpus and the natural gas
// process are optional: when they cannot be started the agent runs without them.
func registerTools(ctx context.Context, a *app, cfg AppConfig, registry *tools.Registry, models *nodes.ChatModels) error {
	client := gasflow.NewClient(cfg.Tools.EntsogBaseURL, gasflow.WithRate(cfg.Tools.EntsogRPS))
	if err := registry.Register(gasflow.NewTool(client)); err != nil {
		return err
	}

	if corpus, err := regulation.LoadCorpus(cfg.Tools.RegulationCorpus); err != nil {
		log().Warn().Err(err).Str("path", cfg.Tools.RegulationCorpus).Msg("regulation corpus unavailable, tool disabled")
	} else {
		t, err := regulation.NewTool(ctx, corpus, models.Response, cfg.Tools.RegulationTitle)
		if err != nil {
			return err
		}
		if err := registry.Register(t); err != nil {
			return err
		}
		log().Info().Int("sections", corpus.Len()).Msg("regulation corpus loaded")
	}

	ngTools, err := startNaturalGas(ctx, a, cfg)
	if err != nil {
		log().Warn().Err(err).Msg("natural gas data process unavailable, tools disabled")
		return nil
	}
	for _, t := range ngTools {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func startNaturalGas(ctx context.Context, a *app, cfg AppConfig) ([]*naturalgas.Tool, error) {
	command := cfg.Tools.NaturalGasCommand
	if command == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		command = self
	}
	env := []string{}
	if cfg.Tools.EIAAPIKey != "" {
		env = append(env, "EIA_API_KEY="+cfg.Tools.EIAAPIKey)
	}

	client, err := mcp.Start(ctx, mcp.StdioOptions{
		Command:     command,
		Args:        strings.Fields(cfg.Tools.NaturalGasArgs),
		Env:         env,
		InitTimeout: naturalGasInitTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	ts, err := naturalgas.Discover(ctx, client)
	if err != nil {
		return nil, err
	}
	log().Info().Int("tools", len(ts)).Msg("natural gas tools discovered")
	return ts, nil
}
