package app

import (
	"context"

	"go.uber.org/zap"
	"marcel.works/circle-go/app/coordinator"
	"marcel.works/circle-go/app/service"
)

// DbService is the persistence backend selected in main, either Redis or
// RethinkDB.
type DbService interface {
	coordinator.Store
	Connect() error
}

type App struct {
	WsService    *service.WsService
	StompService *service.StompService // nil when no broker is configured
	DbService    DbService
	Coordinator  *coordinator.Coordinator
	Logger       *zap.SugaredLogger
}

func (a *App) Start() {
	if err := a.DbService.Connect(); err != nil {
		a.Logger.Fatalw("could not connect to database", "error", err)
	}
	a.Logger.Info("connected to database")

	if a.StompService != nil {
		if err := a.StompService.Connect(); err != nil {
			a.Logger.Fatalw("could not connect to broker", "error", err)
		}
		a.Logger.Info("connected to broker")
	}

	a.Coordinator.SeedVotes(context.Background())

	a.Logger.Info("waiting for connections ...")
	if err := a.WsService.Serve(); err != nil {
		a.Logger.Fatalw("server terminated", "error", err)
	}
}
