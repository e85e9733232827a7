package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

// Режимы работы сервиса. Выбираются один раз при старте.
const (
	ModeObject = "object"
	ModeFace   = "face"
)

// Имена коллекций по умолчанию для каждого режима.
const (
	objectCollectionName = "ObjectData"
	faceCollectionName   = "FaceData"
)

// objectModelDims — размерности эмбеддингов поддерживаемых моделей объектов.
var objectModelDims = map[string]uint64{
	"vits16":     384,
	"vitb16":     768,
	"vitl16":     1024,
	"vith16plus": 1280,
}

// faceVectorSize — размерность эмбеддинга лица, фиксирована моделью распознавания.
const faceVectorSize = 512

type Config struct {
	App       *AppCfg
	Http      *HTTPConfig
	Minio     *MinIOCfg
	Qdrant    *QdrantCfg
	Redis     *RedisCfg
	Inference *InferenceCfg
	Object    *ObjectCfg
	Face      *FaceCfg
	Liveness  *LivenessCfg
	Loader    *LoaderCfg
}

type AppCfg struct {
	Mode         string // object или face
	SnapshotPath string // путь к файлу снапшота конфигурации моделей
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MinIOCfg struct {
	MinioEndpoint     string // Адрес конечной точки Minio
	BucketName        string // Название конкретного бакета в Minio
	MinioRootUser     string // Имя пользователя для доступа к Minio
	MinioRootPassword string // Пароль для доступа к Minio
	MinioUseSSL       bool
}

type QdrantCfg struct {
	Port           int
	Host           string
	ApiKey         string
	CollectionName string // имя коллекции в Qdrant
	UseTLS         bool
	VectorSize     uint64
}

type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	CountsTTL   time.Duration // TTL кэша счётчиков изображений по сущностям
}

type InferenceCfg struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type ObjectCfg struct {
	Model       string  // имя модели эмбеддингов (vits16|vitb16|vitl16|vith16plus)
	BGModel     string  // имя модели удаления фона
	ClsWeight   float32 // вес CLS-токена при слиянии признаков
	PatchWeight float32 // вес усреднённых patch-токенов
}

type FaceCfg struct {
	ModelName    string
	DetThreshold float32
	DetSize      int  // сторона квадрата детекции первого прохода
	FallbackSize int  // сторона квадрата повторной детекции
	MultiScale   bool // включает повторную детекцию на уменьшенном размере
}

type LivenessCfg struct {
	Enabled       bool
	Models        []string // имена моделей MiniFASNet, масштаб кропа парсится из имени
	RealThreshold float32  // минимальная уверенность класса real
	PaperReject   float32  // порог отклонения по классу paper
	ScreenReject  float32  // порог отклонения по классу screen
	InputSize     int      // сторона входного кропа моделей антиспуфинга
}

type LoaderCfg struct {
	DownloadTimeout time.Duration
	MaxImageSide    int   // изображения с большей стороной даунскейлятся
	MaxBodyBytes    int64 // лимит на размер загружаемого файла
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	app, err := loadAppCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	object, err := loadObjectCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	face, err := loadFaceCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrant, err := loadQdrantCfg(log, app.Mode, object)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	liveness, err := loadLivenessCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	loader, err := loadLoaderCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		App:       app,
		Http:      http,
		Minio:     minio,
		Qdrant:    qdrant,
		Redis:     redis,
		Inference: loadInferenceCfg(),
		Object:    object,
		Face:      face,
		Liveness:  liveness,
		Loader:    loader,
	}, nil
}

func loadAppCfg() (*AppCfg, error) {
	const defaultSnapshotPath = "/data/model_config.json"

	mode := strings.ToLower(getEnvOrDefault("SERVICE_MODE", ModeObject))
	if mode != ModeObject && mode != ModeFace {
		return nil, fmt.Errorf("SERVICE_MODE must be %q or %q, got %q", ModeObject, ModeFace, mode)
	}

	return &AppCfg{
		Mode:         mode,
		SnapshotPath: getEnvOrDefault("MODEL_SNAPSHOT_PATH", defaultSnapshotPath),
	}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort         = "8080"
		defaultReadTimeout  = 5 * time.Second
		defaultWriteTimeout = 30 * time.Second
		defaultIdleTimeout  = 60 * time.Second
	)

	port := getEnvOrDefault("HTTP_PORT", defaultPort)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	return &HTTPConfig{
		Port:         port,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL     = false
		defaultEndpoint   = "minio:9000"
		defaultBucketName = "vision-search"
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	return &MinIOCfg{
		MinioEndpoint:     getEnvOrDefault("MINIO_ENDPOINT", defaultEndpoint),
		BucketName:        getEnvOrDefault("BUCKET_NAME", defaultBucketName),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
	}, nil
}

func loadQdrantCfg(log logger.Logger, mode string, object *ObjectCfg) (*QdrantCfg, error) {
	const (
		defaultQdrantGRPCPort = "6334"
		defaultUseTLS         = false
	)

	strPort := getEnvOrDefault("QDRANT_GRPC_PORT", defaultQdrantGRPCPort)
	port, err := strconv.Atoi(strPort)
	if err != nil {
		log.Errorf(err, "invalid QDRANT_GRPC_PORT")
		return nil, err
	}

	useTLS, err := strconv.ParseBool(getEnvOrDefault("QDRANT_USE_TLS", strconv.FormatBool(defaultUseTLS)))
	if err != nil {
		log.Errorf(err, "invalid QDRANT_USE_TLS")
		return nil, err
	}

	// Размерность вектора выводится из режима и модели, переменная
	// окружения позволяет её переопределить.
	vectorSize := uint64(faceVectorSize)
	collection := faceCollectionName
	if mode == ModeObject {
		vectorSize = objectModelDims[object.Model]
		collection = objectCollectionName
	}

	if v := getEnv("VECTOR_SIZE"); v != "" {
		vectorSize, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Errorf(err, "invalid VECTOR_SIZE")
			return nil, err
		}
	}

	return &QdrantCfg{
		Host:           getEnvOrDefault("QDRANT_HOST", "qdrant"),
		Port:           port,
		ApiKey:         getEnv("QDRANT__SERVICE__API_KEY"),
		CollectionName: getEnvOrDefault("COLLECTION_NAME", collection),
		UseTLS:         useTLS,
		VectorSize:     vectorSize,
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultAddr         = "localhost:6379"
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultCountsTTL    = 1 * time.Minute
	)

	addr := getEnvOrDefault("REDIS_ADDR", defaultAddr)
	password := getEnv("REDIS_PASSWORD")
	user := getEnv("REDIS_USER")

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	countsTTL, err := parseDurationEnv("ENTITY_COUNTS_TTL", defaultCountsTTL)
	if err != nil {
		log.Errorf(err, "invalid ENTITY_COUNTS_TTL")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Addr:        addr,
		Password:    password,
		User:        user,
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     timeout,
		CountsTTL:   countsTTL,
	}, nil
}

func loadInferenceCfg() *InferenceCfg {
	const (
		defaultHost       = "inference"
		defaultPort       = "8500"
		defaultTimeout    = 30 * time.Second
		defaultMaxRetries = 3
	)

	host := getEnvOrDefault("INFERENCE_HOST", defaultHost)
	port := getEnvOrDefault("INFERENCE_PORT", defaultPort)

	timeout, err := parseDurationEnv("INFERENCE_TIMEOUT", defaultTimeout)
	if err != nil {
		timeout = defaultTimeout
	}

	return &InferenceCfg{
		BaseURL:    "http://" + host + ":" + port,
		Timeout:    timeout,
		MaxRetries: defaultMaxRetries,
	}
}

func loadObjectCfg() (*ObjectCfg, error) {
	const (
		defaultModel       = "vitb16"
		defaultBGModel     = "isnet-general-use"
		defaultClsWeight   = 0.7
		defaultPatchWeight = 0.3
	)

	model := getEnvOrDefault("OBJECT_MODEL", defaultModel)
	if _, ok := objectModelDims[model]; !ok {
		return nil, fmt.Errorf("unknown OBJECT_MODEL %q", model)
	}

	return &ObjectCfg{
		Model:       model,
		BGModel:     getEnvOrDefault("BG_REMOVAL_MODEL", defaultBGModel),
		ClsWeight:   defaultClsWeight,
		PatchWeight: defaultPatchWeight,
	}, nil
}

func loadFaceCfg(log logger.Logger) (*FaceCfg, error) {
	const (
		defaultModelName    = "buffalo_l"
		defaultDetThreshold = "0.3"
		defaultDetSize      = 640
		defaultFallbackSize = 256
		defaultMultiScale   = true
	)

	detThreshold, err := strconv.ParseFloat(getEnvOrDefault("FACE_DET_THRESHOLD", defaultDetThreshold), 32)
	if err != nil {
		log.Errorf(err, "invalid FACE_DET_THRESHOLD")
		return nil, err
	}

	detSize, err := parseIntEnv("FACE_DET_SIZE", defaultDetSize)
	if err != nil {
		log.Errorf(err, "invalid FACE_DET_SIZE")
		return nil, err
	}

	fallbackSize, err := parseIntEnv("FACE_FALLBACK_SIZE", defaultFallbackSize)
	if err != nil {
		log.Errorf(err, "invalid FACE_FALLBACK_SIZE")
		return nil, err
	}

	multiScale, err := strconv.ParseBool(getEnvOrDefault("FACE_MULTI_SCALE", strconv.FormatBool(defaultMultiScale)))
	if err != nil {
		log.Errorf(err, "invalid FACE_MULTI_SCALE")
		return nil, err
	}

	return &FaceCfg{
		ModelName:    getEnvOrDefault("FACE_MODEL", defaultModelName),
		DetThreshold: float32(detThreshold),
		DetSize:      detSize,
		FallbackSize: fallbackSize,
		MultiScale:   multiScale,
	}, nil
}

func loadLivenessCfg(log logger.Logger) (*LivenessCfg, error) {
	const (
		defaultEnabled       = false
		defaultModels        = "2.7_80x80_MiniFASNetV2,4_0_0_80x80_MiniFASNetV1SE"
		defaultRealThreshold = "0.6"
		defaultPaperReject   = "0.3"
		defaultScreenReject  = "0.3"
		defaultInputSize     = 80
	)

	enabled, err := strconv.ParseBool(getEnvOrDefault("LIVENESS_ENABLED", strconv.FormatBool(defaultEnabled)))
	if err != nil {
		log.Errorf(err, "invalid LIVENESS_ENABLED")
		return nil, err
	}

	realThreshold, err := strconv.ParseFloat(getEnvOrDefault("LIVENESS_REAL_THRESHOLD", defaultRealThreshold), 32)
	if err != nil {
		log.Errorf(err, "invalid LIVENESS_REAL_THRESHOLD")
		return nil, err
	}

	paperReject, err := strconv.ParseFloat(getEnvOrDefault("LIVENESS_PAPER_REJECT", defaultPaperReject), 32)
	if err != nil {
		log.Errorf(err, "invalid LIVENESS_PAPER_REJECT")
		return nil, err
	}

	screenReject, err := strconv.ParseFloat(getEnvOrDefault("LIVENESS_SCREEN_REJECT", defaultScreenReject), 32)
	if err != nil {
		log.Errorf(err, "invalid LIVENESS_SCREEN_REJECT")
		return nil, err
	}

	inputSize, err := parseIntEnv("LIVENESS_INPUT_SIZE", defaultInputSize)
	if err != nil {
		log.Errorf(err, "invalid LIVENESS_INPUT_SIZE")
		return nil, err
	}

	var models []string
	for _, m := range strings.Split(getEnvOrDefault("LIVENESS_MODELS", defaultModels), ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}

	if enabled && len(models) == 0 {
		return nil, e.ErrNoLivenessModels
	}

	return &LivenessCfg{
		Enabled:       enabled,
		Models:        models,
		RealThreshold: float32(realThreshold),
		PaperReject:   float32(paperReject),
		ScreenReject:  float32(screenReject),
		InputSize:     inputSize,
	}, nil
}

func loadLoaderCfg(log logger.Logger) (*LoaderCfg, error) {
	const (
		defaultDownloadTimeout = 20 * time.Second
		defaultMaxImageSide    = 4096
		defaultMaxBodyBytes    = 20 << 20
	)

	downloadTimeout, err := parseDurationEnv("IMAGE_DOWNLOAD_TIMEOUT", defaultDownloadTimeout)
	if err != nil {
		log.Errorf(err, "invalid IMAGE_DOWNLOAD_TIMEOUT")
		return nil, err
	}

	maxImageSide, err := parseIntEnv("MAX_IMAGE_SIDE", defaultMaxImageSide)
	if err != nil {
		log.Errorf(err, "invalid MAX_IMAGE_SIDE")
		return nil, err
	}

	return &LoaderCfg{
		DownloadTimeout: downloadTimeout,
		MaxImageSide:    maxImageSide,
		MaxBodyBytes:    defaultMaxBodyBytes,
	}, nil
}

// ObjectVectorSize возвращает размерность эмбеддинга для модели объектов.
func ObjectVectorSize(model string) (uint64, bool) {
	dim, ok := objectModelDims[model]
	return dim, ok
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}
