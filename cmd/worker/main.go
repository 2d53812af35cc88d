package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aiengine/internal/config"
	"aiengine/internal/models"
	"aiengine/internal/providers"
	"aiengine/internal/queue"
	"aiengine/internal/router"
	"aiengine/internal/storage"
	"aiengine/internal/tasks"
	"aiengine/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		opts   config.Options
		ledger usage.Ledger
		store  tasks.Store
		db     *storage.DB
	)

	if cfg.Database.URL != "" {
		db, err = storage.NewDB(storage.DBConfig{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			OptionCacheSize: cfg.Cache.OptionCacheSize,
			OptionCacheTTL:  cfg.Cache.OptionCacheTTL,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		var enc *storage.Encryption
		if cfg.EncryptionKey != "" {
			enc, err = storage.NewEncryptionFromBase64(cfg.EncryptionKey)
			if err != nil {
				log.Fatalf("Failed to load encryption key: %v", err)
			}
		}

		opts = storage.NewDBOptions(db, enc)
		ledger = db.NewUsageRepository(cfg.Usage.MaxRecords)
		store = db.NewTaskRepository()
	} else {
		log.Println("DATABASE_URL not set, using in-memory stores")
		opts = config.EnvOptions{}
		ledger = usage.NewMemoryLedger(cfg.Usage.MaxRecords)
		store = tasks.NewMemoryStore()
	}

	registry, err := buildRegistry(ctx, opts)
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}

	routing, err := config.LoadRoutingTable(ctx, opts)
	if err != nil {
		log.Fatalf("Failed to load routing policy: %v", err)
	}

	// Usage writes go through the async recorder by default, so a slow
	// or unavailable ledger cannot stall a dispatch.
	var sink router.UsageSink = ledger
	var recorder *usage.Recorder
	if cfg.Usage.AsyncRecorder {
		qcfg := queue.DefaultConfig("usage")
		qcfg.RedisAddr = cfg.Redis.Address
		qcfg.RedisPassword = cfg.Redis.Password
		qcfg.RedisDB = cfg.Redis.DB

		var q queue.Queue
		var dlq queue.DeadLetterQueue
		if cfg.Usage.UseRedisQueue {
			q, err = queue.NewRedisQueue(qcfg)
			if err != nil {
				log.Fatalf("Failed to connect usage queue to Redis: %v", err)
			}
			dlq, err = queue.NewRedisDeadLetterQueue(qcfg)
			if err != nil {
				log.Fatalf("Failed to connect usage DLQ to Redis: %v", err)
			}
		} else {
			q = queue.NewMemoryQueue(qcfg)
			dlq = queue.NewMemoryDeadLetterQueue()
		}

		recorder = usage.NewRecorder(q, dlq, ledger, qcfg)
		recorder.Start(ctx)
		sink = recorder
	}

	rtr := router.New(registry, routing, sink, cfg.Router.RequestTimeout)

	handlers := tasks.NewHandlerRegistry()
	if err := registerBuiltinHandlers(handlers, rtr); err != nil {
		log.Fatalf("Failed to register task handlers: %v", err)
	}

	dispatcher := tasks.NewDispatcher(store, handlers, tasks.FixedBackoff{Delay: cfg.Worker.RetryDelay}, tasks.DispatcherConfig{
		TickInterval: cfg.Worker.TickInterval,
		BatchSize:    cfg.Worker.BatchSize,
		TaskTimeout:  cfg.Worker.TaskTimeout,
	})
	dispatcher.Start(ctx)

	log.Printf("Worker %s running, tick interval %s", dispatcher.WorkerID(), cfg.Worker.TickInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	if err := dispatcher.Stop(); err != nil {
		log.Printf("Dispatcher shutdown error: %v", err)
	}
	if recorder != nil {
		if err := recorder.Stop(); err != nil {
			log.Printf("Usage recorder shutdown error: %v", err)
		}
	}

	log.Println("Worker exited")
}

// buildRegistry registers every adapter with its pricing table. Pricing
// is data from options, not code; a provider without a stored table
// simply reports zero cost.
func buildRegistry(ctx context.Context, opts config.Options) (*providers.Registry, error) {
	registry := providers.NewRegistry(opts)

	register := func(info models.ProviderInfo, build func(models.PricingTable) providers.Adapter) error {
		pricing, err := loadPricing(ctx, opts, info.ID+"_pricing")
		if err != nil {
			return err
		}
		return registry.Register(info, build(pricing))
	}

	if err := register(providers.OpenAIInfo(), func(p models.PricingTable) providers.Adapter {
		return providers.NewOpenAI(opts, p)
	}); err != nil {
		return nil, err
	}
	if err := register(providers.AnthropicInfo(), func(p models.PricingTable) providers.Adapter {
		return providers.NewAnthropic(opts, p)
	}); err != nil {
		return nil, err
	}
	if err := register(providers.GeminiInfo(), func(p models.PricingTable) providers.Adapter {
		return providers.NewGemini(opts, p)
	}); err != nil {
		return nil, err
	}
	if err := register(providers.ElevenLabsInfo(), func(p models.PricingTable) providers.Adapter {
		return providers.NewElevenLabs(opts, p)
	}); err != nil {
		return nil, err
	}

	return registry, nil
}

func loadPricing(ctx context.Context, opts config.Options, key string) (models.PricingTable, error) {
	raw, err := opts.GetOption(ctx, key)
	if errors.Is(err, config.ErrOptionNotFound) {
		return models.PricingTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing option %q: %w", key, err)
	}
	return models.PricingTableFromJSON([]byte(raw))
}

// registerBuiltinHandlers wires the deferred-capability handler: a task
// of type capability.dispatch routes its payload through the capability
// router when the dispatcher picks it up.
func registerBuiltinHandlers(handlers *tasks.HandlerRegistry, rtr *router.Router) error {
	return handlers.Register("capability.dispatch", func(ctx context.Context, payload models.JSONB) error {
		capability, _ := payload["capability"].(string)
		prompt, _ := payload["prompt"].(string)
		feature, _ := payload["feature"].(string)
		model, _ := payload["model"].(string)

		result := rtr.Dispatch(ctx, models.Capability(capability), router.Payload{Prompt: prompt}, router.Options{
			Feature: feature,
			Model:   model,
		})
		if !result.Success {
			return result.Err
		}
		return nil
	})
}
