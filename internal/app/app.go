// Package app — точка сборки приложения: клиенты, репозитории, стратегия
// режима, usecase-слой и HTTP-сервер.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/vision-search/internal/cfg"
	v1Http "github.com/DRSN-tech/vision-search/internal/delivery/v1/http"
	"github.com/DRSN-tech/vision-search/internal/infrastructure/backend"
	"github.com/DRSN-tech/vision-search/internal/infrastructure/imaging"
	"github.com/DRSN-tech/vision-search/internal/infrastructure/inference"
	livenessInfra "github.com/DRSN-tech/vision-search/internal/infrastructure/liveness"
	fileRepo "github.com/DRSN-tech/vision-search/internal/repository/file"
	s3Repo "github.com/DRSN-tech/vision-search/internal/repository/minio"
	qdrantRepo "github.com/DRSN-tech/vision-search/internal/repository/qdrant"
	redisRepo "github.com/DRSN-tech/vision-search/internal/repository/redis"
	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/clients"
	"github.com/DRSN-tech/vision-search/pkg/closer"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

// Пороги похожести по умолчанию. Для лиц порог выше:
// пространство эмбеддингов лиц плотнее.
const (
	defaultObjectThreshold = 0.7
	defaultFaceThreshold   = 0.75
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg    *config.Config
	logger logger.Logger

	httpSrv   *v1Http.Server
	catalogUC usecase.CatalogUC
	closer    *closer.Closer

	shutdownCancel context.CancelFunc
}

// NewApp инициализирует все зависимости. Ошибка любой из них фатальна.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	cl := closer.NewCloser(2 * time.Second)

	// Контекст фоновых задач, живёт до остановки приложения
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	app := &App{
		cfg:            cfg,
		logger:         log,
		closer:         cl,
		shutdownCancel: shutdownCancel,
	}

	minioClient, err := clients.NewMinIOClient(cfg)
	if err != nil {
		shutdownCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer initCancel()

	if err := clients.EnsureBucket(initCtx, minioClient, cfg.Minio.BucketName); err != nil {
		shutdownCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrantClient, err := clients.NewQdrantClient(cfg.Qdrant)
	if err != nil {
		shutdownCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if err := clients.EnsureCollection(initCtx, qdrantClient); err != nil {
		shutdownCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		return qdrantClient.Client.Close()
	})

	redisClient := clients.NewRedisClient(cfg.Redis)
	if err := redisClient.Ping(initCtx); err != nil {
		shutdownCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		return redisClient.Client.Close()
	})

	inferenceClient, err := inference.NewClient(cfg.Inference)
	if err != nil {
		shutdownCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	activeBackend, err := backend.New(cfg.App.Mode, inferenceClient, cfg, log)
	if err != nil {
		shutdownCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	livenessEnsemble := livenessInfra.NewEnsemble(inferenceClient, cfg.Liveness, log)
	loader := imaging.NewLoader(cfg.Loader, log)

	vectorRepo := qdrantRepo.NewVectorRepo(qdrantClient.Client, cfg.Qdrant)
	artifactRepo := s3Repo.NewArtifactRepo(minioClient, cfg.Minio, log, shutdownCtx)
	catalogCache := redisRepo.NewCatalogCache(redisClient, cfg.Redis, log)
	snapshotRepo := fileRepo.NewSnapshotRepo(cfg.App.SnapshotPath)

	// Фоновые удаления должны успеть завершиться до закрытия клиентов
	cl.Add(artifactRepo.WaitForCleanup)

	matchUC := usecase.NewMatchUC(vectorRepo, artifactRepo, activeBackend, livenessEnsemble, loader, log)
	imageUC := usecase.NewImageUC(vectorRepo, artifactRepo, catalogCache, activeBackend, livenessEnsemble, loader, log)
	catalogUC := usecase.NewCatalogUC(vectorRepo, artifactRepo, catalogCache, snapshotRepo, activeBackend, log)
	app.catalogUC = catalogUC

	r := chi.NewRouter()
	router := v1Http.NewRouter(r, log)
	router.Init(v1Http.Deps{
		MatchUC:          matchUC,
		ImageUC:          imageUC,
		CatalogUC:        catalogUC,
		DefaultThreshold: defaultThresholdForMode(cfg.App.Mode),
		MaxFileSize:      cfg.Loader.MaxBodyBytes,
	})

	app.httpSrv = v1Http.NewServer(r, cfg.Http)

	return app, nil
}

// Run выполняет стартовую сверку моделей, поднимает HTTP-сервер и блокируется
// до сигнала остановки или фатальной ошибки сервера.
func (a *App) Run() error {
	// Сверка снапшота — эксклюзивный барьер: может уничтожить коллекцию,
	// поэтому выполняется строго до приёма трафика
	reconcileCtx, reconcileCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer reconcileCancel()

	if err := a.catalogUC.Reconcile(reconcileCtx); err != nil {
		a.logger.Errorf(err, "model snapshot reconciliation failed")
		return err
	}

	a.logger.Infof("service mode: %s, collection: %s", a.cfg.App.Mode, a.cfg.Qdrant.CollectionName)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf(err, "HTTP server failed: %v", err)
			errCh <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	a.stop()

	return appErr
}

// stop останавливает сервер и закрывает ресурсы в обратном порядке создания.
func (a *App) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpSrv.Stop(shutdownCtx); err != nil {
		a.logger.Errorf(err, "HTTP server shutdown error")
	} else {
		a.logger.Infof("HTTP server stopped")
	}

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Warnf("resource shutdown finished with errors: %v", err)
	}

	// Отмена фоновых контекстов после завершения очисток
	a.shutdownCancel()

	a.logger.Infof("Application shutdown complete")
}

func defaultThresholdForMode(mode string) float32 {
	if mode == config.ModeFace {
		return defaultFaceThreshold
	}

	return defaultObjectThreshold
}
