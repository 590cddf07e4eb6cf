// Package settings loads service configuration from environment variables and an optional config file.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// backends
const (
	BackendMemory = "memory"
	BackendSanity = "sanity"
	BackendSQL    = "sql"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendKafka  = "kafka"
	BackendLocal  = "local"
	BackendS3     = "s3"
)

// keys to access config values. Each one is bound to the env variable in envBindings
const (
	serverPortKey          = "server.port"
	serverSecureCookiesKey = "server.secure_cookies"
	cmsBackendKey          = "cms.backend"

	sanityProjectIDKey  = "sanity.project_id"
	sanityDatasetKey    = "sanity.dataset"
	sanityAPIVersionKey = "sanity.api_version"
	sanityTokenKey      = "sanity.token"
	sanityUseCDNKey     = "sanity.use_cdn"

	dbDriverKey   = "database.driver"
	dbDSNKey      = "database.dsn"
	dbUserKey     = "database.user"
	dbPasswordKey = "database.password"
	dbNameKey     = "database.name"
	dbHostKey     = "database.host"
	dbPortKey     = "database.port"

	fallbackBackendKey = "fallback.backend"
	fallbackDirKey     = "fallback.dir"
	redisAddrKey       = "redis.addr"
	redisPasswordKey   = "redis.password"
	redisDBKey         = "redis.db"
	redisPrefixKey     = "redis.prefix"

	outboxBackendKey     = "outbox.backend"
	outboxMaxAttemptsKey = "outbox.max_attempts"
	outboxRetryDelayKey  = "outbox.retry_delay"
	kafkaBrokersKey      = "kafka.brokers"
	kafkaTopicKey        = "kafka.topic"
	kafkaGroupIDKey      = "kafka.group_id"

	jwtSecretKey         = "auth.jwt_secret"
	tokenTTLKey          = "auth.token_ttl"
	adminsKey            = "auth.admins"
	adminEmailKey        = "admin.email"
	adminPasswordKey     = "admin.password"
	adminNameKey         = "admin.name"
	adminRegistrationKey = "admin.registration_key"
	uploadBackendKey     = "upload.backend"
	uploadMaxBytesKey    = "upload.max_bytes"
	uploadDirKey         = "upload.dir"
	uploadPublicURLKey   = "upload.public_url"
	s3EndpointKey        = "s3.endpoint"
	s3AccessKeyKey       = "s3.access_key"
	s3SecretKeyKey       = "s3.secret_key"
	s3BucketKey          = "s3.bucket"
	s3UseSSLKey          = "s3.use_ssl"
	s3PublicURLKey       = "s3.public_url"
	searchIndexPathKey   = "search.index_path"
	rateLimitRequestsKey = "ratelimit.requests"
	rateLimitWindowKey   = "ratelimit.window"
	otelEndpointKey      = "otel.endpoint"
	otelServiceNameKey   = "otel.service_name"
	otelSampleRatioKey   = "otel.sample_ratio"
	environmentKey       = "env"
)

var envBindings = map[string][]string{
	serverPortKey:          {"SERVER_PORT", "PORT"},
	serverSecureCookiesKey: {"SECURE_COOKIES"},
	cmsBackendKey:          {"CMS_BACKEND"},

	sanityProjectIDKey:  {"SANITY_PROJECT_ID", "NEXT_PUBLIC_SANITY_PROJECT_ID"},
	sanityDatasetKey:    {"SANITY_DATASET", "NEXT_PUBLIC_SANITY_DATASET"},
	sanityAPIVersionKey: {"SANITY_API_VERSION"},
	sanityTokenKey:      {"SANITY_API_TOKEN"},
	sanityUseCDNKey:     {"SANITY_USE_CDN"},

	dbDriverKey:   {"DB_DRIVER"},
	dbDSNKey:      {"DB_DSN"},
	dbUserKey:     {"DB_USER"},
	dbPasswordKey: {"DB_PASSWORD"},
	dbNameKey:     {"DB_NAME"},
	dbHostKey:     {"DB_HOST"},
	dbPortKey:     {"DB_PORT"},

	fallbackBackendKey: {"FALLBACK_BACKEND"},
	fallbackDirKey:     {"FALLBACK_DIR"},
	redisAddrKey:       {"REDIS_ADDR"},
	redisPasswordKey:   {"REDIS_PASSWORD"},
	redisDBKey:         {"REDIS_DB"},
	redisPrefixKey:     {"REDIS_PREFIX"},

	outboxBackendKey:     {"OUTBOX_BACKEND"},
	outboxMaxAttemptsKey: {"OUTBOX_MAX_ATTEMPTS"},
	outboxRetryDelayKey:  {"OUTBOX_RETRY_DELAY"},
	kafkaBrokersKey:      {"KAFKA_BROKERS", "KAFKA_BOOTSTRAP_SERVERS"},
	kafkaTopicKey:        {"KAFKA_TOPIC"},
	kafkaGroupIDKey:      {"KAFKA_GROUP_ID"},

	jwtSecretKey:         {"JWT_SECRET_KEY", "JWT_SECRET"},
	tokenTTLKey:          {"TOKEN_TTL"},
	adminsKey:            {"ADMINS"},
	adminEmailKey:        {"ADMIN_EMAIL", "NEXT_PUBLIC_ADMIN_EMAIL"},
	adminPasswordKey:     {"ADMIN_PASSWORD", "NEXT_PUBLIC_ADMIN_PASSWORD"},
	adminNameKey:         {"ADMIN_NAME"},
	adminRegistrationKey: {"ADMIN_REGISTRATION_KEY"},
	uploadBackendKey:     {"UPLOAD_BACKEND"},
	uploadMaxBytesKey:    {"UPLOAD_MAX_BYTES"},
	uploadDirKey:         {"UPLOAD_DIR"},
	uploadPublicURLKey:   {"UPLOAD_PUBLIC_URL"},
	s3EndpointKey:        {"S3_ENDPOINT", "MINIO_ENDPOINT"},
	s3AccessKeyKey:       {"S3_ACCESS_KEY", "MINIO_ACCESS_KEY"},
	s3SecretKeyKey:       {"S3_SECRET_KEY", "MINIO_SECRET_KEY"},
	s3BucketKey:          {"S3_BUCKET", "MINIO_BUCKET"},
	s3UseSSLKey:          {"S3_USE_SSL"},
	s3PublicURLKey:       {"S3_PUBLIC_URL"},
	searchIndexPathKey:   {"SEARCH_INDEX_PATH"},
	rateLimitRequestsKey: {"RATE_LIMIT_REQUESTS"},
	rateLimitWindowKey:   {"RATE_LIMIT_WINDOW"},
	otelEndpointKey:      {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	otelServiceNameKey:   {"OTEL_SERVICE_NAME"},
	otelSampleRatioKey:   {"OTEL_TRACES_SAMPLER_ARG"},
	environmentKey:       {"ENV"},
}

var defaults = map[string]interface{}{
	serverPortKey:          "8080",
	serverSecureCookiesKey: true,
	cmsBackendKey:          BackendMemory,
	sanityDatasetKey:       "production",
	sanityAPIVersionKey:    "2024-10-24",
	dbDriverKey:            "sqlite3",
	dbDSNKey:               "file:data/writerly.db?_busy_timeout=5000",
	dbHostKey:              "localhost",
	dbPortKey:              "5432",
	fallbackBackendKey:     BackendFile,
	fallbackDirKey:         "data",
	redisPrefixKey:         "writerly:",
	outboxBackendKey:       BackendMemory,
	outboxMaxAttemptsKey:   10,
	outboxRetryDelayKey:    "5s",
	kafkaTopicKey:          "writerly.metrics.outbox",
	kafkaGroupIDKey:        "writerly-reconciler",
	tokenTTLKey:            "24h",
	adminEmailKey:          "admin@writerly.com",
	adminNameKey:           "Admin User",
	uploadBackendKey:       BackendLocal,
	uploadMaxBytesKey:      10 << 20,
	uploadDirKey:           "data/uploads",
	uploadPublicURLKey:     "/uploads",
	s3UseSSLKey:            true,
	s3BucketKey:            "writerly-images",
	rateLimitRequestsKey:   30,
	rateLimitWindowKey:     "1m",
	otelServiceNameKey:     "writerly",
	otelSampleRatioKey:     1.0,
	environmentKey:         "local",
}

// Sanity - Sanity project settings
type Sanity struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	UseCDN     bool
}

// Database - SQL database for users and the SQL document store
type Database struct {
	Driver string
	DSN    string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Outbox struct {
	Backend      string
	MaxAttempts  int
	RetryDelay   time.Duration
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string
}

type Auth struct {
	JWTSecret       []byte
	TokenTTL        time.Duration
	Admins          []string
	AdminEmail      string
	AdminPassword   string
	AdminName       string
	RegistrationKey string
}

type S3 struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type Upload struct {
	Backend   string
	MaxBytes  int64
	Dir       string
	PublicURL string
	S3        S3
}

type RateLimit struct {
	Requests int64
	Window   time.Duration
}

type Telemetry struct {
	Endpoint    string
	ServiceName string
	SampleRatio float64
	Environment string
}

// Config - whole service configuration
type Config struct {
	Port            string
	SecureCookies   bool
	CMSBackend      string
	Sanity          Sanity
	Database        Database
	FallbackBackend string
	FallbackDir     string
	Redis           Redis
	Outbox          Outbox
	Auth            Auth
	Upload          Upload
	SearchIndexPath string
	RateLimit       RateLimit
	Telemetry       Telemetry
}

// Load - reads configuration. Environment variables override the config file
// Empty configFile means environment and defaults only
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// bind env variables. Access them by the same key
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Port:          v.GetString(serverPortKey),
		SecureCookies: v.GetBool(serverSecureCookiesKey),
		CMSBackend:    strings.ToLower(v.GetString(cmsBackendKey)),
		Sanity: Sanity{
			ProjectID:  v.GetString(sanityProjectIDKey),
			Dataset:    v.GetString(sanityDatasetKey),
			APIVersion: v.GetString(sanityAPIVersionKey),
			Token:      v.GetString(sanityTokenKey),
			UseCDN:     v.GetBool(sanityUseCDNKey),
		},
		Database:        databaseSettings(v),
		FallbackBackend: strings.ToLower(v.GetString(fallbackBackendKey)),
		FallbackDir:     v.GetString(fallbackDirKey),
		Redis: Redis{
			Addr:     v.GetString(redisAddrKey),
			Password: v.GetString(redisPasswordKey),
			DB:       v.GetInt(redisDBKey),
			Prefix:   v.GetString(redisPrefixKey),
		},
		Outbox: Outbox{
			Backend:      strings.ToLower(v.GetString(outboxBackendKey)),
			MaxAttempts:  v.GetInt(outboxMaxAttemptsKey),
			RetryDelay:   cast.ToDuration(v.Get(outboxRetryDelayKey)),
			KafkaBrokers: v.GetString(kafkaBrokersKey),
			KafkaTopic:   v.GetString(kafkaTopicKey),
			KafkaGroupID: v.GetString(kafkaGroupIDKey),
		},
		Auth: Auth{
			JWTSecret:       []byte(v.GetString(jwtSecretKey)),
			TokenTTL:        cast.ToDuration(v.Get(tokenTTLKey)),
			Admins:          stringList(v.Get(adminsKey)),
			AdminEmail:      v.GetString(adminEmailKey),
			AdminPassword:   v.GetString(adminPasswordKey),
			AdminName:       v.GetString(adminNameKey),
			RegistrationKey: v.GetString(adminRegistrationKey),
		},
		Upload: Upload{
			Backend:   strings.ToLower(v.GetString(uploadBackendKey)),
			MaxBytes:  cast.ToInt64(v.Get(uploadMaxBytesKey)),
			Dir:       v.GetString(uploadDirKey),
			PublicURL: v.GetString(uploadPublicURLKey),
			S3: S3{
				Endpoint:  v.GetString(s3EndpointKey),
				AccessKey: v.GetString(s3AccessKeyKey),
				SecretKey: v.GetString(s3SecretKeyKey),
				Bucket:    v.GetString(s3BucketKey),
				UseSSL:    v.GetBool(s3UseSSLKey),
				PublicURL: v.GetString(s3PublicURLKey),
			},
		},
		SearchIndexPath: v.GetString(searchIndexPathKey),
		RateLimit: RateLimit{
			Requests: cast.ToInt64(v.Get(rateLimitRequestsKey)),
			Window:   cast.ToDuration(v.Get(rateLimitWindowKey)),
		},
		Telemetry: Telemetry{
			Endpoint:    v.GetString(otelEndpointKey),
			ServiceName: v.GetString(otelServiceNameKey),
			SampleRatio: cast.ToFloat64(v.Get(otelSampleRatioKey)),
			Environment: v.GetString(environmentKey),
		},
	}
	if adminEmail := strings.ToLower(strings.TrimSpace(cfg.Auth.AdminEmail)); adminEmail != "" {
		cfg.Auth.AdminEmail = adminEmail
		cfg.Auth.Admins = appendUnique(cfg.Auth.Admins, adminEmail)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate - checks backend names and required values
func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.JWTSecret) == 0 {
		errs = append(errs, errors.New("auth.jwt_secret (JWT_SECRET_KEY) is required"))
	}
	if !oneOf(c.CMSBackend, BackendMemory, BackendSanity, BackendSQL) {
		errs = append(errs, fmt.Errorf("unknown cms backend %q", c.CMSBackend))
	}
	if c.CMSBackend == BackendSanity && c.Sanity.ProjectID == "" {
		errs = append(errs, errors.New("sanity.project_id is required for the sanity backend"))
	}
	if !oneOf(c.FallbackBackend, BackendMemory, BackendFile, BackendRedis) {
		errs = append(errs, fmt.Errorf("unknown fallback backend %q", c.FallbackBackend))
	}
	if c.FallbackBackend == BackendRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis fallback backend"))
	}
	if !oneOf(c.Outbox.Backend, BackendMemory, BackendKafka) {
		errs = append(errs, fmt.Errorf("unknown outbox backend %q", c.Outbox.Backend))
	}
	if c.Outbox.Backend == BackendKafka && c.Outbox.KafkaBrokers == "" {
		errs = append(errs, errors.New("kafka.brokers is required for the kafka outbox backend"))
	}
	// a mutation may be replayed by another instance, which must see the delta it removes
	if c.Outbox.Backend == BackendKafka && c.FallbackBackend != BackendRedis {
		errs = append(errs, errors.New("the kafka outbox backend requires the redis fallback backend"))
	}
	if !oneOf(c.Upload.Backend, BackendLocal, BackendSanity, BackendS3) {
		errs = append(errs, fmt.Errorf("unknown upload backend %q", c.Upload.Backend))
	}
	if c.Upload.Backend == BackendSanity && c.CMSBackend != BackendSanity {
		errs = append(errs, errors.New("sanity upload backend requires the sanity cms backend"))
	}
	if c.Upload.Backend == BackendS3 && c.Upload.S3.Endpoint == "" {
		errs = append(errs, errors.New("s3.endpoint is required for the s3 upload backend"))
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window < time.Second {
		errs = append(errs, fmt.Errorf("ratelimit.window must be at least 1s, got %s", c.RateLimit.Window))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	return errors.Join(errs...)
}

// databaseSettings - DB_DSN wins; for postgres without DSN the connection string is built from parts
func databaseSettings(v *viper.Viper) Database {
	db := Database{
		Driver: v.GetString(dbDriverKey),
		DSN:    v.GetString(dbDSNKey),
	}
	if db.Driver == "postgres" && (!v.IsSet(dbDSNKey) || strings.HasPrefix(db.DSN, "file:")) {
		db.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			v.GetString(dbHostKey), v.GetString(dbPortKey), v.GetString(dbUserKey),
			v.GetString(dbPasswordKey), v.GetString(dbNameKey))
	}
	return db
}

// stringList - comma separated string from env, or a list from the config file
func stringList(v interface{}) []string {
	var items []string
	if s, ok := v.(string); ok {
		items = strings.Split(s, ",")
	} else {
		items = cast.ToStringSlice(v)
	}

	result := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			result = appendUnique(result, item)
		}
	}
	return result
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func oneOf(value string, options ...string) bool {
	for _, option := range options {
		if value == option {
			return true
		}
	}
	return false
}
