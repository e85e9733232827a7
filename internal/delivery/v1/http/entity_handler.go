package http

import (
	"net/http"

	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type EntityHandler struct {
	catalogUsecase usecase.CatalogUC
	logger         logger.Logger
}

func NewEntityHandler(catalogUsecase usecase.CatalogUC, logger logger.Logger) *EntityHandler {
	return &EntityHandler{catalogUsecase: catalogUsecase, logger: logger}
}

// listEntities
//
//	@Summary	Список сущностей со счётчиками изображений
//	@Tags		entities
//	@Produce	json
//	@Success	200	{array}		domain.EntityCount	"Сущности по убыванию счётчика"
//	@Failure	500	{object}	ErrorResponse
//	@Router		/entities [get]
func (h *EntityHandler) listEntities(w http.ResponseWriter, r *http.Request) {
	counts, err := h.catalogUsecase.ListEntities(r.Context())
	if err != nil {
		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, counts)
}

// listEntityImages
//
//	@Summary	Все записи одной сущности
//	@Tags		entities
//	@Produce	json
//	@Param		entity_id	path		string	true	"Идентификатор сущности"
//	@Success	200			{array}		domain.ImageRecord
//	@Failure	400			{object}	ErrorResponse
//	@Router		/entities/{entity_id}/images [get]
func (h *EntityHandler) listEntityImages(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entity_id")

	records, err := h.catalogUsecase.ListEntityImages(r.Context(), entityID)
	if err != nil {
		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, records)
}

// deleteEntity
//
//	@Summary	Каскадное удаление сущности
//	@Description	Удаляет все записи сущности вместе с их файлами
//	@Tags		entities
//	@Produce	json
//	@Param		entity_id	path		string					true	"Идентификатор сущности"
//	@Success	200			{object}	usecase.DeleteEntityRes	"Число удалённых записей"
//	@Failure	400			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse	"Сущность без записей"
//	@Router		/entities/{entity_id} [delete]
func (h *EntityHandler) deleteEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entity_id")

	res, err := h.catalogUsecase.DeleteEntity(r.Context(), entityID)
	if err != nil {
		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	// Сущность без единой записи — not found, а не успешное удаление нуля
	if res.DeletedRecords == 0 {
		WriteError(w, e.ErrNotFound)
		return
	}

	WriteSuccess(w, http.StatusOK, res)
}

// stats
//
//	@Summary	Статистика коллекции
//	@Tags		stats
//	@Produce	json
//	@Success	200	{object}	usecase.StatsRes
//	@Failure	500	{object}	ErrorResponse
//	@Router		/stats [get]
func (h *EntityHandler) stats(w http.ResponseWriter, r *http.Request) {
	res, err := h.catalogUsecase.Stats(r.Context())
	if err != nil {
		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, res)
}
