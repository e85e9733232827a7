// Package inference — клиент сервиса инференса моделей.
// Сервис держит загруженные ONNX-модели и отдаёт результаты по HTTP JSON,
// изображения передаются в base64.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/jimlawless/whereami"
)

// Client — HTTP-клиент сервиса инференса.
type Client struct {
	baseURL *url.URL
	client  *http.Client
}

func NewClient(cfg *cfg.InferenceCfg) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid inference URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid inference URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid inference URL: missing host")
	}

	return &Client{
		baseURL: parsed,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// DetectedFace — одно лицо, найденное детектором, вместе с эмбеддингом.
type DetectedFace struct {
	BBox      [4]float32  `json:"bbox"`
	DetScore  float32     `json:"det_score"`
	Landmarks [][]float32 `json:"landmarks,omitempty"`
	Embedding []float32   `json:"embedding"`
}

type detectFacesReq struct {
	Image     string  `json:"image"`
	Model     string  `json:"model"`
	DetSize   int     `json:"det_size"`
	Threshold float32 `json:"threshold"`
}

type detectFacesRes struct {
	Faces []DetectedFace `json:"faces"`
}

// DetectFaces находит лица на изображении при заданном размере детекции.
// Лица возвращаются по убыванию уверенности детектора.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte, model string, detSize int, threshold float32) ([]DetectedFace, error) {
	req := detectFacesReq{
		Image:     base64.StdEncoding.EncodeToString(imageData),
		Model:     model,
		DetSize:   detSize,
		Threshold: threshold,
	}

	var res detectFacesRes
	if err := c.post(ctx, "/v1/face/detect", req, &res); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return res.Faces, nil
}

type removeBackgroundReq struct {
	Image string `json:"image"`
	Model string `json:"model"`
}

type removeBackgroundRes struct {
	Image string `json:"image"`
}

// RemoveBackground сегментирует объект и возвращает PNG с прозрачным фоном.
func (c *Client) RemoveBackground(ctx context.Context, imageData []byte, model string) ([]byte, error) {
	req := removeBackgroundReq{
		Image: base64.StdEncoding.EncodeToString(imageData),
		Model: model,
	}

	var res removeBackgroundRes
	if err := c.post(ctx, "/v1/object/segment", req, &res); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	decoded, err := base64.StdEncoding.DecodeString(res.Image)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return decoded, nil
}

type embedObjectReq struct {
	Image string `json:"image"`
	Model string `json:"model"`
}

// ObjectFeatures — признаки трансформера: CLS-токен и усреднённые patch-токены.
type ObjectFeatures struct {
	CLS   []float32 `json:"cls"`
	Patch []float32 `json:"patch"`
}

// EmbedObject извлекает признаки объекта указанной моделью.
func (c *Client) EmbedObject(ctx context.Context, imageData []byte, model string) (*ObjectFeatures, error) {
	req := embedObjectReq{
		Image: base64.StdEncoding.EncodeToString(imageData),
		Model: model,
	}

	var res ObjectFeatures
	if err := c.post(ctx, "/v1/object/embed", req, &res); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if len(res.CLS) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrEmptyVector)
	}

	return &res, nil
}

type livenessReq struct {
	Image string `json:"image"`
	Model string `json:"model"`
}

type livenessRes struct {
	Logits []float32 `json:"logits"`
}

// LivenessLogits возвращает сырые логиты одной модели антиспуфинга
// в порядке классов [paper, real, screen].
func (c *Client) LivenessLogits(ctx context.Context, cropData []byte, model string) ([]float32, error) {
	req := livenessReq{
		Image: base64.StdEncoding.EncodeToString(cropData),
		Model: model,
	}

	var res livenessRes
	if err := c.post(ctx, "/v1/liveness", req, &res); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if len(res.Logits) != 3 {
		return nil, fmt.Errorf("liveness model %s returned %d logits, expected 3", model, len(res.Logits))
	}

	return res.Logits, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody, resBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("inference request %s failed with status %d: %s", path, res.StatusCode, truncateBody(body))
	}

	return json.Unmarshal(body, resBody)
}

func truncateBody(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}

	return string(body)
}
