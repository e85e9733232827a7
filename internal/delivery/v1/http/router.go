package http

import (
	_ "github.com/DRSN-tech/vision-search/docs" // Импорт сгенерированных файлов
	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

// Deps — зависимости маршрутов API.
type Deps struct {
	MatchUC          usecase.MatchUC
	ImageUC          usecase.ImageUC
	CatalogUC        usecase.CatalogUC
	DefaultThreshold float32
	MaxFileSize      int64
}

func (r *Router) Init(deps Deps) {
	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"), // ссылка на JSON
	))

	r.router.Route("/api/v1", func(v1 chi.Router) {
		matchHandler := NewMatchHandler(deps.MatchUC, deps.DefaultThreshold, deps.MaxFileSize, r.logger)
		imageHandler := NewImageHandler(deps.ImageUC, deps.MaxFileSize, r.logger)
		entityHandler := NewEntityHandler(deps.CatalogUC, r.logger)

		v1.Post("/match", matchHandler.match)

		registerImageRoutes(v1, imageHandler)
		registerEntityRoutes(v1, entityHandler)
	})
}

func registerImageRoutes(router chi.Router, h *ImageHandler) {
	router.Route("/images", func(im chi.Router) {
		im.Post("/", h.register)
		im.Get("/{image_id}", h.getImage)
		im.Delete("/{image_id}", h.deleteImage)
	})
}

func registerEntityRoutes(router chi.Router, h *EntityHandler) {
	router.Route("/entities", func(en chi.Router) {
		en.Get("/", h.listEntities)
		en.Get("/{entity_id}/images", h.listEntityImages)
		en.Delete("/{entity_id}", h.deleteEntity)
	})

	router.Get("/stats", h.stats)
}
