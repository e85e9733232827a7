package http

import (
	"encoding/json"
	"net/http"

	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
)

type MatchHandler struct {
	matchUsecase     usecase.MatchUC
	defaultThreshold float32
	maxFileSize      int64
	logger           logger.Logger
}

func NewMatchHandler(matchUsecase usecase.MatchUC, defaultThreshold float32, maxFileSize int64, logger logger.Logger) *MatchHandler {
	return &MatchHandler{
		matchUsecase:     matchUsecase,
		defaultThreshold: defaultThreshold,
		maxFileSize:      maxFileSize,
		logger:           logger,
	}
}

// matchJSONReq — тело запроса поиска по URL.
type matchJSONReq struct {
	ImageURL      string   `json:"image_url"`
	EntityIDs     []string `json:"entity_ids,omitempty"`
	Threshold     *float32 `json:"threshold,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	CheckLiveness bool     `json:"check_liveness,omitempty"`
	SaveTemp      bool     `json:"save_temp,omitempty"`
}

// matchRes — ответ поиска с разбивкой времени по этапам.
type matchRes struct {
	*usecase.MatchRes
	TimingsMs map[string]int64 `json:"timings_ms"`
}

// match
//
//	@Summary		Поиск похожих изображений
//	@Description	Ищет ближайшие изображения и группирует совпадения по сущностям
//	@Tags			match
//	@Accept			multipart/form-data
//	@Accept			json
//	@Produce		json
//	@Param			image			formData	file	false	"Изображение запроса"
//	@Param			image_url		formData	string	false	"URL изображения, если файл не передан"
//	@Param			entity_ids		formData	string	false	"Область поиска: идентификаторы через запятую"
//	@Param			threshold		formData	number	false	"Порог похожести [0,1]"
//	@Param			top_k			formData	integer	false	"Максимум групп в ответе (1-100)"
//	@Param			check_liveness	formData	boolean	false	"Проверка живости (режим face)"
//	@Param			save_temp		formData	boolean	false	"Сохранить превью запроса"
//	@Success		200				{object}	matchRes		"Результат поиска"
//	@Failure		400				{object}	ErrorResponse	"Ошибка валидации"
//	@Failure		403				{object}	ErrorResponse	"Отказ проверки живости"
//	@Failure		415				{object}	ErrorResponse	"Неподдерживаемый Content-Type"
//	@Failure		422				{object}	ErrorResponse	"Лицо или объект не найдены"
//	@Router			/match [post]
func (m *MatchHandler) match(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 32 << 20

	r.Body = http.MaxBytesReader(w, r.Body, m.maxFileSize+maxMemory)

	var (
		req *usecase.MatchReq
		err error
	)
	switch {
	case isMultipart(r):
		req, err = m.parseMultipart(r)
	case isJSON(r):
		req, err = m.parseJSON(r)
	default:
		err = e.ErrUnsupportedMediaType
	}
	if err != nil {
		m.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, err)
		return
	}

	res, err := m.matchUsecase.Match(r.Context(), req)
	if err != nil {
		m.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, &matchRes{
		MatchRes:  res,
		TimingsMs: timingsToMs(res),
	})
}

func (m *MatchHandler) parseMultipart(r *http.Request) (*usecase.MatchReq, error) {
	const maxMemory = 32 << 20

	if err := ensureMultipartForm(r, maxMemory); err != nil {
		return nil, err
	}

	data, err := readImageFile(r, "image", m.maxFileSize)
	if err != nil {
		return nil, err
	}

	threshold, err := parseFloatField(r.FormValue("threshold"), m.defaultThreshold)
	if err != nil {
		return nil, err
	}

	topK, err := parseIntField(r.FormValue("top_k"), 0)
	if err != nil {
		return nil, err
	}

	liveness, err := parseBoolField(r.FormValue("check_liveness"), false)
	if err != nil {
		return nil, err
	}

	saveTemp, err := parseBoolField(r.FormValue("save_temp"), false)
	if err != nil {
		return nil, err
	}

	return usecase.NewMatchReq(
		data,
		r.FormValue("image_url"),
		parseIDList(r.FormValue("entity_ids")),
		threshold,
		topK,
		liveness,
		saveTemp,
	), nil
}

func (m *MatchHandler) parseJSON(r *http.Request) (*usecase.MatchReq, error) {
	var body matchJSONReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, e.Wrap(err.Error(), e.ErrStatusBadRequest)
	}

	threshold := m.defaultThreshold
	if body.Threshold != nil {
		threshold = *body.Threshold
	}

	return usecase.NewMatchReq(
		nil,
		body.ImageURL,
		body.EntityIDs,
		threshold,
		body.TopK,
		body.CheckLiveness,
		body.SaveTemp,
	), nil
}

func timingsToMs(res *usecase.MatchRes) map[string]int64 {
	return map[string]int64{
		"load":   res.Timings.Load.Milliseconds(),
		"detect": res.Timings.Detect.Milliseconds(),
		"embed":  res.Timings.Embed.Milliseconds(),
		"search": res.Timings.Search.Milliseconds(),
		"group":  res.Timings.Group.Milliseconds(),
		"total":  res.Timings.Total.Milliseconds(),
	}
}
