package main

import (
	"os"

	"go.uber.org/zap"
	"marcel.works/circle-go/app"
	"marcel.works/circle-go/app/coordinator"
	"marcel.works/circle-go/app/registry"
	"marcel.works/circle-go/app/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	var dbService app.DbService
	if os.Getenv("CIRCLE_DB_BACKEND") == "rethinkdb" {
		dbService = &service.RethinkService{}
	} else {
		dbService = &service.RedisService{}
	}

	reg := registry.New()
	coord := &coordinator.Coordinator{
		Registry: reg,
		Sessions: registry.NewSessions(),
		Store:    dbService,
		Logger:   sugar,
	}
	wsService := service.NewWsService(coord, reg, sugar)
	coord.Gateway = wsService

	var stompService *service.StompService
	if os.Getenv("CIRCLE_BROKER_HOST") != "" {
		stompService = &service.StompService{Logger: sugar}
		coord.Relay = stompService
	}

	a := app.App{
		WsService:    wsService,
		StompService: stompService,
		DbService:    dbService,
		Coordinator:  coord,
		Logger:       sugar,
	}
	a.Start()
}
