package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"github.com/pi-apps/a2u/internal/config"
	"github.com/pi-apps/a2u/internal/core/application"
	"github.com/pi-apps/a2u/internal/infrastructure/db"
	scheduler "github.com/pi-apps/a2u/internal/infrastructure/scheduler/gocron"
	service_interface "github.com/pi-apps/a2u/internal/interface"
	"github.com/pi-apps/a2u/internal/interface/web"
	"github.com/pi-apps/a2u/pkg/a2u"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultTokenTTL = 30 * 24 * time.Hour

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		printToken(os.Args[2:])
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	if cfg.WithSentry() {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: version,
		}); err != nil {
			log.WithError(err).Fatal("failed to init sentry")
		}
	}

	log.Info("starting a2ud...")

	ctx := context.Background()

	seed, err := cfg.UnlockerService().GetSeed(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to unlock wallet")
	}

	client, err := a2u.New(a2u.Config{
		ApiKey:     cfg.ApiKey,
		Seed:       seed,
		Network:    cfg.Network,
		ApiURL:     cfg.ApiURL,
		HorizonURL: cfg.HorizonURL,
	}, a2u.WithLogger(log.WithField("module", "a2u")))
	if err != nil {
		log.WithError(err).Fatal("failed to init payments client")
	}

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: cfg.DbConfig(),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	buildInfo := application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	schedulerSvc := scheduler.NewScheduler()

	appSvc, err := application.NewService(
		buildInfo, client, dbSvc, schedulerSvc, cfg.RecoveryPeriod(),
	)
	if err != nil {
		log.WithError(err).Fatal(err)
	}

	svc, err := service_interface.NewService(service_interface.Config{
		HTTPPort:   cfg.HTTPPort,
		JWTSecret:  cfg.JWTSecret,
		WithSentry: cfg.WithSentry(),
	}, appSvc)
	if err != nil {
		log.Fatal(err)
	}

	log.RegisterExitHandler(func() {
		svc.Stop()
		appSvc.Stop()
		dbSvc.Close()
		sentry.Flush(2 * time.Second)
	})

	if err := appSvc.Start(ctx); err != nil {
		log.Fatal(err)
	}

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}

// printToken prints an admin token for the given subject.
// Usage: a2ud token <subject> [ttl]
func printToken(args []string) {
	if len(args) <= 0 {
		log.Fatal("usage: a2ud token <subject> [ttl]")
	}
	secret, err := config.LoadJWTSecret()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	ttl := defaultTokenTTL
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil || d <= 0 {
			log.Fatalf("invalid ttl %q", args[1])
		}
		ttl = d
	}

	token, err := web.NewToken(secret, args[0], config.AdminPermissions(), ttl)
	if err != nil {
		log.WithError(err).Fatal("failed to issue token")
	}
	fmt.Println(token)
}
