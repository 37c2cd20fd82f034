package app

import (
	"context"
	"errors"
	"net/http"

	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/ingest"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

type App struct {
	log      logger.Logger
	httpSrv  HTTPServer
	consumer *ingest.Consumer
}

func NewApp(log logger.Logger, httpSrv HTTPServer, consumer *ingest.Consumer) *App {
	return &App{log: log, httpSrv: httpSrv, consumer: consumer}
}

func (a *App) Start(ctx context.Context) error {
	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
	}

	go func() {
		if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("Start HTTP server is error=%v", err)
		}
	}()

	a.log.Infof("App started")
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	// consumer first so no new events race the final state save
	if a.consumer != nil {
		a.consumer.Close()
	}

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	a.log.Infof("App stopped")
	return nil
}
