package main

import (
	"os"

	"github.com/DRSN-tech/vision-search/internal/app"
	config "github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/pkg/logger"
)

//	@title			Vision Search API
//	@version		1.0
//	@description	Сервис визуального поиска: регистрация изображений и поиск по эмбеддингам
//	@host			localhost:8080
//	@BasePath		/api/v1

func main() {
	log := logger.NewSlogLogger()

	cfg, err := config.Load(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize app")
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		os.Exit(1)
	}
}
