package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/csvfilereader/config"
	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"bitbucket.org/mmdatafocus/csvfilereader/scheduler"
	"bitbucket.org/mmdatafocus/csvfilereader/service"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	cfg, err := config.LoadImportConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	config.ConnectDatabaseWithRetry()
	defer config.CloseDatabase()
	config.ConnectRedisWithRetry(sigCtx)
	defer config.CloseRedis()
	defer config.ClosePubSub()

	db := config.GetDB()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	store := models.NewImportStore(db)
	orch := service.NewOrchestrator(cfg, store, logger)
	sched, err := service.NewScheduler(cfg, orch, scheduler.RedisLocker{Client: config.GetRedisLock()}, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Fatal(err)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: service.NewRouter(sched, store, orch, service.RouterConfig{
			AllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
			APIToken:       strings.TrimSpace(os.Getenv("IMPORT_API_TOKEN")),
		}, logger),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if cfg.RunOnStartup {
			if err := service.RunJobs(sigCtx, sched, models.ImportTriggeredStartup,
				service.JobImportOrganizations, service.JobImportEmployees); err != nil {
				logger.WithFields(logrus.Fields{"field": "startup"}).Error("startup import failed: " + err.Error())
			}
		}
		sched.Run(sigCtx)
	}()

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
		stopSignals()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-schedDone
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
