package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/api"
	"github.com/crewdeck/crewdeck/internal/auth"
	"github.com/crewdeck/crewdeck/internal/config"
	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/notify"
	"github.com/crewdeck/crewdeck/internal/ratelimit"
	"github.com/crewdeck/crewdeck/internal/scoped"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Crewdeck API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	})

	broker := notify.NewBroker()
	broker.OnPublish(m.IncNotifyEvent)
	m.RegisterSubscriberGauge(broker.SubscriberCount)

	tenantStore := tenant.NewStore(pool)
	activityStore := activity.NewStore(pool)
	collector := activity.NewCollector(activityStore, cfg.Activity.BatchSize, cfg.Activity.FlushInterval)
	go collector.Start(ctx)

	crewStore := scoped.NewCrewStore(pool, m)
	taskStore := scoped.NewTaskStore(pool, m)
	timeEntryStore := scoped.NewTimeEntryStore(pool, m)

	authService := auth.NewService(tenantStore, cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	loginLimiter := ratelimit.New(cfg.RateLimit.Login, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		TenantStore:    tenantStore,
		CrewStore:      crewStore,
		TaskStore:      taskStore,
		TimeEntryStore: timeEntryStore,
		ActivityStore:  activityStore,
		Collector:      collector,
		Auth:           authService,
		Broker:         broker,
		LoginLimiter:   loginLimiter,
		Metrics:        m,
	})

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// No write deadline: the event stream holds its connection open.
		WriteTimeout: 0,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	collector.Stop()

	return srv.Shutdown(shutdownCtx)
}
