// Package imaging — получение и декодирование входных изображений.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/url"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/jimlawless/whereami"
	"golang.org/x/image/draw"
)

// Loader скачивает, декодирует и приводит изображения к рабочему размеру.
type Loader struct {
	cfg    *cfg.LoaderCfg
	client *http.Client
	logger logger.Logger
}

func NewLoader(cfg *cfg.LoaderCfg, logger logger.Logger) *Loader {
	return &Loader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.DownloadTimeout},
		logger: logger,
	}
}

// Acquire возвращает декодированное изображение из байтов либо по URL.
// Слишком крупные кадры даунскейлятся с сохранением пропорций.
func (l *Loader) Acquire(ctx context.Context, req *usecase.AcquireImageReq) (*usecase.LoadedImage, error) {
	data := req.Data
	if len(data) == 0 {
		downloaded, err := l.download(ctx, req.URL)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		data = downloaded
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %v", e.ErrInvalidImage, err))
	}

	if resized, ok := l.downscale(img); ok {
		l.logger.Debugf("image downscaled from %dx%d", img.Bounds().Dx(), img.Bounds().Dy())

		// Исходные байты больше не соответствуют кадру, перекодируем
		img = resized
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		data = buf.Bytes()
		format = "png"
	}

	return &usecase.LoadedImage{
		Image:    img,
		Data:     data,
		MimeType: mimeForFormat(format),
	}, nil
}

// Annotate рисует рамку детекции и возвращает PNG.
func (l *Loader) Annotate(img image.Image, bbox [4]float32) ([]byte, error) {
	const thickness = 3

	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	green := color.RGBA{G: 255, A: 255}
	rect := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).
		Add(bounds.Min).
		Intersect(bounds)

	for t := 0; t < thickness; t++ {
		drawRectOutline(out, rect.Inset(-t), green)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return buf.Bytes(), nil
}

func (l *Loader) download(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid url %q", e.ErrImageDownload, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	res, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrImageDownload, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d from %s", e.ErrImageDownload, res.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, l.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrImageDownload, err)
	}
	if int64(len(data)) > l.cfg.MaxBodyBytes {
		return nil, e.ErrFileTooLarge
	}

	return data, nil
}

// downscale уменьшает изображение, если большая сторона превышает лимит.
func (l *Loader) downscale(img image.Image) (image.Image, bool) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	maxSide := l.cfg.MaxImageSide

	if width <= maxSide && height <= maxSide {
		return nil, false
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSide
		newHeight = int(float64(height) * float64(maxSide) / float64(width))
	} else {
		newHeight = maxSide
		newWidth = int(float64(width) * float64(maxSide) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	return resized, true
}

func drawRectOutline(img *image.RGBA, rect image.Rectangle, c color.Color) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}

	for x := rect.Min.X; x < rect.Max.X; x++ {
		img.Set(x, rect.Min.Y, c)
		img.Set(x, rect.Max.Y-1, c)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		img.Set(rect.Min.X, y, c)
		img.Set(rect.Max.X-1, y, c)
	}
}

func mimeForFormat(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
