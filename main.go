// social-agent is a cross-posting workflow engine.
//
// Extracts video posts from source accounts, transforms them per destination
// platform, and republishes under rate limits with retry and idempotency
// guarantees. Runs as an HTTP control API (serve) or a one-shot workflow (run).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Bravine-Kulei/social-agent/internal/config"
	"github.com/Bravine-Kulei/social-agent/internal/engine"
	"github.com/Bravine-Kulei/social-agent/internal/platforms"
	"github.com/Bravine-Kulei/social-agent/internal/scheduler"
	"github.com/Bravine-Kulei/social-agent/internal/server"
	"github.com/Bravine-Kulei/social-agent/internal/source"
	"github.com/Bravine-Kulei/social-agent/internal/store"
	"github.com/Bravine-Kulei/social-agent/internal/transform"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app := &cli.Command{
		Name:    "social-agent",
		Usage:   "extract, transform and republish social video content",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP control API (and scheduler, if configured)",
				Action: serveAction,
			},
			{
				Name:  "run",
				Usage: "execute one workflow and wait for it to finish",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "account", Usage: "source account handle (repeatable)", Required: true},
					&cli.StringSliceFlag{Name: "platform", Usage: "destination platform (repeatable)"},
					&cli.IntFlag{Name: "max-items", Usage: "per-account item cap"},
				},
				Action: runAction,
			},
			{
				Name:   "health",
				Usage:  "verify publisher credentials and exit",
				Action: healthAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// buildOrchestrator wires the engine from configuration.
func buildOrchestrator(cfg config.Config) (*engine.Orchestrator, func(), error) {
	var (
		st      engine.Store
		cleanup = func() {}
	)
	if cfg.DatabasePath != "" {
		db, err := store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		st = db
		cleanup = func() { db.Close() }
		slog.Info("sqlite store opened", slog.String("path", cfg.DatabasePath))
	} else {
		st = store.NewMemory()
		slog.Info("using in-memory store")
	}

	var src engine.ContentSource
	if cfg.UseSampleData {
		src = source.NewSample(cfg.MaxItemsPerAccount)
		slog.Info("using sample content source")
	} else {
		src = source.NewInstagram(cfg.SourceTimeout)
	}

	var transformer engine.Transformer
	if cfg.OpenAIAPIKey != "" {
		t, err := transform.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.LLMTemperature)
		if err != nil {
			return nil, nil, err
		}
		transformer = t
		slog.Info("using openai transformer", slog.String("model", cfg.OpenAIModel))
	} else {
		transformer = &transform.RuleBased{ExtraHashtags: cfg.DefaultHashtags}
		slog.Info("using rule-based transformer")
	}

	publishers := make(map[string]engine.Publisher)
	if cfg.TwitterBearerToken != "" {
		publishers["twitter"] = platforms.NewTwitter(cfg.TwitterBearerToken)
	}
	if cfg.LinkedInAccessToken != "" {
		publishers["linkedin"] = platforms.NewLinkedIn(cfg.LinkedInAccessToken, cfg.LinkedInAuthorURN)
	}
	if len(publishers) == 0 {
		slog.Warn("no publisher credentials configured; publishes will fail")
	}

	limits := make(map[string]engine.RateWindow, len(cfg.RateLimits))
	for platform, w := range cfg.RateLimits {
		limits[platform] = engine.RateWindow{Limit: w.Limit, Window: w.Window}
	}

	retry := engine.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		InitialWait: cfg.InitialWait,
		MaxWait:     cfg.MaxWait,
		Multiplier:  cfg.Multiplier,
	}

	orc := engine.NewOrchestrator(
		engine.Options{
			SupportedPlatforms: cfg.SupportedPlatforms,
			AccountWorkers:     cfg.AccountWorkers,
			MaxItemsPerAccount: cfg.MaxItemsPerAccount,
			CallTimeout:        cfg.CallTimeout,
		},
		src, transformer, publishers, platforms.Constraints,
		engine.NewRateLimiter(limits), retry, st,
	)
	return orc, cleanup, nil
}

func serveAction(ctx context.Context, _ *cli.Command) error {
	cfg := config.Load()
	orc, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.CheckInterval > 0 && len(cfg.TargetAccounts) > 0 {
		sched := scheduler.New(orc, cfg.TargetAccounts, cfg.SupportedPlatforms)
		if err := sched.Start(cfg.CheckInterval); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := server.New(orc)
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			slog.Error("server shutdown failed", slog.Any("error", err))
		}
		orc.Shutdown()
	}()

	slog.Info("starting social-agent", slog.String("version", version), slog.String("port", cfg.Port))
	return srv.Listen(":" + cfg.Port)
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Load()
	orc, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	req := engine.StartRequest{Platforms: cmd.StringSlice("platform")}
	if len(req.Platforms) == 0 {
		req.Platforms = cfg.SupportedPlatforms
	}
	for _, handle := range cmd.StringSlice("account") {
		req.Accounts = append(req.Accounts, engine.TargetAccount{
			Handle:   handle,
			MaxItems: cmd.Int("max-items"),
		})
	}

	id, err := orc.Start(ctx, req)
	if err != nil {
		return err
	}

	// Poll until the run reaches a terminal status.
	for {
		run, err := orc.Status(ctx, id)
		if err != nil {
			return err
		}
		if run.Status.Terminal() {
			out, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if run.Status != engine.StatusCompleted {
				return fmt.Errorf("workflow ended %s", run.Status)
			}
			return nil
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			if err := orc.Cancel(context.Background(), id); err != nil {
				slog.Error("cancel failed", slog.Any("error", err))
			}
			orc.Shutdown()
			return ctx.Err()
		}
	}
}

func healthAction(ctx context.Context, _ *cli.Command) error {
	cfg := config.Load()
	orc, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	report := orc.Health(ctx)
	healthy := true
	for platform, detail := range report {
		if detail == "" {
			fmt.Printf("%-10s ok\n", platform)
		} else {
			fmt.Printf("%-10s FAIL: %s\n", platform, detail)
			healthy = false
		}
	}
	if !healthy {
		return fmt.Errorf("one or more publishers unhealthy")
	}
	return nil
}
