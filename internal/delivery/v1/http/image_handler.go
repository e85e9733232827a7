package http

import (
	"encoding/json"
	"net/http"

	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type ImageHandler struct {
	imageUsecase usecase.ImageUC
	maxFileSize  int64
	logger       logger.Logger
}

func NewImageHandler(imageUsecase usecase.ImageUC, maxFileSize int64, logger logger.Logger) *ImageHandler {
	return &ImageHandler{
		imageUsecase: imageUsecase,
		maxFileSize:  maxFileSize,
		logger:       logger,
	}
}

// registerJSONReq — тело запроса регистрации по URL.
type registerJSONReq struct {
	EntityID      string          `json:"entity_id"`
	ImageURL      string          `json:"image_url"`
	CustomData    json.RawMessage `json:"custom_data,omitempty"`
	CheckLiveness bool            `json:"check_liveness,omitempty"`
	SaveFiles     *bool           `json:"save_files,omitempty"` // по умолчанию файлы сохраняются
}

// register
//
//	@Summary		Регистрация изображения
//	@Description	Извлекает эмбеддинг и сохраняет изображение за сущностью
//	@Tags			images
//	@Accept			multipart/form-data
//	@Accept			json
//	@Produce		json
//	@Param			entity_id		formData	string	true	"Идентификатор сущности"
//	@Param			image			formData	file	false	"Файл изображения"
//	@Param			image_url		formData	string	false	"URL изображения, если файл не передан"
//	@Param			custom_data		formData	string	false	"Произвольный JSON, сохраняется с записью"
//	@Param			check_liveness	formData	boolean	false	"Проверка живости (режим face)"
//	@Param			save_files		formData	boolean	false	"Сохранять ли файлы изображения (по умолчанию true)"
//	@Success		201				{object}	usecase.RegisterRes	"Созданная запись"
//	@Failure		400				{object}	ErrorResponse		"Ошибка валидации"
//	@Failure		409				{object}	ErrorResponse		"Несовпадение размерности"
//	@Failure		415				{object}	ErrorResponse		"Неподдерживаемый Content-Type"
//	@Router			/images [post]
func (i *ImageHandler) register(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 32 << 20

	r.Body = http.MaxBytesReader(w, r.Body, i.maxFileSize+maxMemory)

	var (
		req *usecase.RegisterReq
		err error
	)
	switch {
	case isMultipart(r):
		req, err = i.parseMultipart(r)
	case isJSON(r):
		req, err = i.parseJSON(r)
	default:
		err = e.ErrUnsupportedMediaType
	}
	if err != nil {
		i.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, err)
		return
	}

	res, err := i.imageUsecase.Register(r.Context(), req)
	if err != nil {
		i.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusCreated, res)
}

// getImage
//
//	@Summary	Данные записи по идентификатору изображения
//	@Tags		images
//	@Produce	json
//	@Param		image_id	path		string				true	"Идентификатор изображения"
//	@Success	200			{object}	domain.ImageRecord	"Запись"
//	@Failure	404			{object}	ErrorResponse		"Запись не найдена"
//	@Router		/images/{image_id} [get]
func (i *ImageHandler) getImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "image_id")

	record, err := i.imageUsecase.GetImage(r.Context(), imageID)
	if err != nil {
		i.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, record)
}

// deleteImage
//
//	@Summary	Удаление записи вместе с файлами
//	@Tags		images
//	@Produce	json
//	@Param		image_id	path		string					true	"Идентификатор изображения"
//	@Success	200			{object}	map[string]interface{}	"Подтверждение удаления"
//	@Failure	404			{object}	ErrorResponse			"Запись не найдена"
//	@Router		/images/{image_id} [delete]
func (i *ImageHandler) deleteImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "image_id")

	if err := i.imageUsecase.DeleteImage(r.Context(), imageID); err != nil {
		i.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"image_id": imageID,
		"deleted":  true,
	})
}

func (i *ImageHandler) parseMultipart(r *http.Request) (*usecase.RegisterReq, error) {
	const maxMemory = 32 << 20

	if err := ensureMultipartForm(r, maxMemory); err != nil {
		return nil, err
	}

	data, err := readImageFile(r, "image", i.maxFileSize)
	if err != nil {
		return nil, err
	}

	liveness, err := parseBoolField(r.FormValue("check_liveness"), false)
	if err != nil {
		return nil, err
	}

	saveFiles, err := parseBoolField(r.FormValue("save_files"), true)
	if err != nil {
		return nil, err
	}

	var customData json.RawMessage
	if raw := r.FormValue("custom_data"); raw != "" {
		customData = json.RawMessage(raw)
	}

	return usecase.NewRegisterReq(
		r.FormValue("entity_id"),
		data,
		r.FormValue("image_url"),
		customData,
		liveness,
		saveFiles,
	), nil
}

func (i *ImageHandler) parseJSON(r *http.Request) (*usecase.RegisterReq, error) {
	var body registerJSONReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, e.Wrap(err.Error(), e.ErrStatusBadRequest)
	}

	saveFiles := true
	if body.SaveFiles != nil {
		saveFiles = *body.SaveFiles
	}

	return usecase.NewRegisterReq(
		body.EntityID,
		nil,
		body.ImageURL,
		body.CustomData,
		body.CheckLiveness,
		saveFiles,
	), nil
}
