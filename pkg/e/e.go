package e

import "fmt"

var (
	// Ошибки валидации входных данных (400 Bad Request)
	ErrNoSubjectDetected    = fmt.Errorf("no subject detected in image")
	ErrNoFaceDetected       = fmt.Errorf("no face detected in image")
	ErrLivenessRejected     = fmt.Errorf("liveness check failed")
	ErrDimensionMismatch    = fmt.Errorf("vector dimension mismatch")
	ErrInvalidVector        = fmt.Errorf("invalid feature vector")
	ErrEmptyVector          = fmt.Errorf("feature vector is empty")
	ErrEntityIDRequired     = fmt.Errorf("entity id is required")
	ErrImageRequired        = fmt.Errorf("image or image url is required")
	ErrInvalidImage         = fmt.Errorf("invalid or corrupt image")
	ErrImageDownload        = fmt.Errorf("failed to download image")
	ErrInvalidThreshold     = fmt.Errorf("threshold must be in [0, 1]")
	ErrInvalidTopK          = fmt.Errorf("top_k must be positive")
	ErrInvalidCustomData    = fmt.Errorf("custom_data must be a valid json object")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrExpectedMultipart    = fmt.Errorf("expected multipart/form-data or application/json")
	ErrFileTooLarge         = fmt.Errorf("file too large")
	ErrStatusBadRequest     = fmt.Errorf("bad request")

	// 404 Not Found
	ErrNotFound = fmt.Errorf("not found")

	// Внутренние ошибки
	ErrInternalServerError  = fmt.Errorf("internal server error")
	ErrNoLivenessModels     = fmt.Errorf("no liveness models configured")
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
