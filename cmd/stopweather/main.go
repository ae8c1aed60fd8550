package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	flag "github.com/spf13/pflag"

	httpapi "github.com/i474232898/stopweather/internal/api/http"
	"github.com/i474232898/stopweather/internal/app"
	"github.com/i474232898/stopweather/internal/config"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/logging"
	"github.com/i474232898/stopweather/internal/scheduler"
	"github.com/i474232898/stopweather/internal/weather"
)

const appName = "stopweather"

func main() {
	configPath := flag.StringP("config", "c", config.DefaultPath, "path to the JSON or YAML config file")
	once := flag.Bool("once", false, "run a single polling cycle and exit")
	flag.Parse()

	os.Exit(run(*configPath, *once))
}

// run returns the process exit code: 0 on a clean stop, 1 on a config or database failure.
func run(configPath string, once bool) int {
	cfg, err := config.Load(configPath)
	if err == nil {
		err = cfg.ValidateProviders()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// keep stdout for printed observations
	var logOut io.Writer = os.Stdout
	if cfg.Print {
		logOut = os.Stderr
	}
	log := logging.NewWithWriter(logOut, cfg, appName)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "error", err)
		return 1
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("failed to close store", "error", err)
		}
	}()

	provs, err := app.Providers(cfg)
	if err != nil {
		log.Error("failed to build providers", "error", err)
		return 1
	}

	pubs, closePubs, err := app.Publishers(ctx, cfg, os.Stdout, log)
	if err != nil {
		log.Error("failed to start publishers", "error", err)
		return 1
	}
	defer closePubs()

	service := weather.NewService(st, provs, log, pubs...)

	// fatal is cancelled when a cycle cannot read the Locations table.
	fatalCtx, fatal := context.WithCancelCause(ctx)
	defer fatal(nil)

	sched := scheduler.New(service, scheduler.Options{
		Delay:        cfg.Delay,
		Schedule:     cfg.Schedule,
		CycleTimeout: cfg.CycleTimeout,
		OnFatal:      func(err error) { fatal(err) },
	}, log)

	if once {
		report, err := sched.RunNow(ctx)
		if err != nil {
			log.Error("polling cycle failed", "error", err)
			return 1
		}
		log.Info("polling cycle done",
			"cycle", report.ID.String(),
			"stored", report.Stored(),
			"failed", report.Failed(),
			"skipped", report.Skipped(),
		)
		return 0
	}

	if err := sched.Start(fatalCtx); err != nil {
		log.Error("failed to start scheduler", "error", err)
		return 1
	}
	defer sched.Stop()

	var web *fiber.App
	if cfg.HTTPEnabled() {
		web = newServer(service, sched)
		go func() {
			log.Info("http server listening", "addr", cfg.HTTPAddr)
			if err := web.Listen(cfg.HTTPAddr); err != nil {
				log.Error("fiber server stopped", "error", err)
			}
		}()
	}

	<-fatalCtx.Done()

	code := 0
	if cause := context.Cause(fatalCtx); failure.Is(cause, failure.Database) {
		log.Error("stopping: database unavailable", "error", cause)
		code = 1
	} else {
		log.Info("shutting down")
	}

	if web != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := web.ShutdownWithContext(shutdownCtx); err != nil {
			log.Warn("error during shutdown", "error", err)
		}
	}
	return code
}

func newServer(service *weather.Service, sched *scheduler.Scheduler) *fiber.App {
	web := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	web.Use(logger.New())
	web.Use(recover.New())

	httpapi.RegisterRoutes(web, service, sched)
	return web
}
