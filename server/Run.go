package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/cms/docstore"
	"github.com/Techyishu/writerly/cms/memstore"
	"github.com/Techyishu/writerly/cms/sanity"
	"github.com/Techyishu/writerly/fallback"
	"github.com/Techyishu/writerly/handler/restapi"
	"github.com/Techyishu/writerly/media"
	"github.com/Techyishu/writerly/outbox"
	"github.com/Techyishu/writerly/search"
	"github.com/Techyishu/writerly/service/authService"
	"github.com/Techyishu/writerly/service/postService"
	"github.com/Techyishu/writerly/service/trackingService"
	"github.com/Techyishu/writerly/service/userService"
	"github.com/Techyishu/writerly/settings"
	"github.com/Techyishu/writerly/telemetry"
)

var (
	logInfo  = log.New(os.Stdout, "INFO: ", log.Ltime)
	logError = log.New(os.Stderr, "ERROR: ", log.Ltime)
)

// shutdownTimeout - time given to in-flight requests on shutdown
const shutdownTimeout = 15 * time.Second

// loggers - INFO/ERROR pair of one component
func loggers(component string) (*log.Logger, *log.Logger) {
	return log.New(os.Stdout, "["+component+"] INFO: ", log.Ltime),
		log.New(os.Stderr, "["+component+"] ERROR: ", log.Ltime)
}

// Env - dependencies of the HTTP API
type Env struct {
	Config   *settings.Config
	DB       *sql.DB
	Client   cms.Client
	Fallback fallback.Store
	Outbox   outbox.Queue
	Tracker  *trackingService.Tracker
	Index    *search.Index
	Auth     *authService.Authenticator
	Uploader media.Uploader
	Limiter  restapi.Limiter
	Metrics  *telemetry.Metrics
	// UploadDir - served under Config.Upload.PublicURL when uploads are stored locally
	UploadDir string

	closers []io.Closer
}

// Close - releases stores and connections in reverse order of creation
func (env *Env) Close() {
	for i := len(env.closers) - 1; i >= 0; i-- {
		if err := env.closers[i].Close(); err != nil {
			logError.Printf("Error closing resource: %s", err)
		}
	}
	env.closers = nil
}

func (env *Env) onClose(c io.Closer) {
	env.closers = append(env.closers, c)
}

// NewRouter - builds the HTTP API on top of env
func NewRouter(env *Env) http.Handler {
	postAPIHandler := restapi.NewPostAPIHandler(env.Client, env.Tracker, env.Index,
		log.New(os.Stdout, "[restApi.post] INFO: ", log.Ltime),
		log.New(os.Stderr, "[restApi.post] ERROR: ", log.Ltime))
	categoryAPIHandler := restapi.NewCategoryAPIHandler(env.Client,
		log.New(os.Stdout, "[restApi.category] INFO: ", log.Ltime),
		log.New(os.Stderr, "[restApi.category] ERROR: ", log.Ltime))
	commentAPIHandler := restapi.NewCommentAPIHandler(env.Tracker,
		log.New(os.Stdout, "[restApi.comment] INFO: ", log.Ltime),
		log.New(os.Stderr, "[restApi.comment] ERROR: ", log.Ltime))
	feedbackAPIHandler := restapi.NewFeedbackAPIHandler(env.Tracker,
		log.New(os.Stdout, "[restApi.feedback] INFO: ", log.Ltime),
		log.New(os.Stderr, "[restApi.feedback] ERROR: ", log.Ltime))
	visitorAPIHandler := restapi.NewVisitorAPIHandler(env.Tracker, env.Config.SecureCookies,
		log.New(os.Stdout, "[restApi.visitor] INFO: ", log.Ltime),
		log.New(os.Stderr, "[restApi.visitor] ERROR: ", log.Ltime))
	userAPIHandler := restapi.NewUserAPIHandler(env.DB, env.Auth, env.Config.Auth.Admins, env.Config.Auth.RegistrationKey,
		log.New(os.Stdout, "[restApi.user] INFO: ", log.Ltime),
		log.New(os.Stderr, "[restApi.user] ERROR: ", log.Ltime))
	uploadAPIHandler := restapi.NewUploadAPIHandler(env.Uploader, env.Config.Upload.MaxBytes,
		log.New(os.Stdout, "[restApi.upload] INFO: ", log.Ltime),
		log.New(os.Stderr, "[restApi.upload] ERROR: ", log.Ltime))
	rateLimit := restapi.RateLimit(env.Limiter, env.Metrics,
		log.New(os.Stderr, "[restApi.ratelimit] ERROR: ", log.Ltime))

	router := mux.NewRouter()
	router.NotFoundHandler = restapi.NotFoundHandler()
	router.Use(restapi.RequestLogger(env.Metrics, log.New(os.Stdout, "[http] INFO: ", log.Ltime)))

	router.HandleFunc("/api/hc", func(w http.ResponseWriter, r *http.Request) {
		if env.DB != nil {
			if err := env.DB.PingContext(r.Context()); err != nil {
				logError.Printf("Health check failed: %s", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	router.Handle("/metrics", env.Metrics.Handler()).Methods("GET")

	// set metrics tracking api
	router.Handle("/api/visitors", rateLimit(visitorAPIHandler.TrackViewHandler())).Methods("POST")
	router.Handle("/api/visitors", visitorAPIHandler.GetViewCountHandler()).Methods("GET")
	router.Handle("/api/feedback", rateLimit(feedbackAPIHandler.CreateFeedbackHandler())).Methods("POST")
	router.Handle("/api/feedback", feedbackAPIHandler.GetFeedbackHandler()).Methods("GET")
	router.Handle("/api/comments", rateLimit(commentAPIHandler.CreateCommentHandler())).Methods("POST")
	router.Handle("/api/comments", commentAPIHandler.GetCommentsHandler()).Methods("GET")

	// set public blog posts api. Search goes before {slug}
	router.Handle("/api/posts", postAPIHandler.GetPublishedPostsHandler()).Methods("GET")
	router.Handle("/api/posts/search", postAPIHandler.SearchPostsHandler()).Methods("GET")
	router.Handle("/api/posts/{slug}", postAPIHandler.GetPostBySlugHandler()).Methods("GET")
	router.Handle("/api/categories", categoryAPIHandler.GetCategoriesHandler()).Methods("GET")

	// set auth handlers
	router.Handle("/api/auth/login", userAPIHandler.LoginUserHandler()).Methods("POST")
	router.Handle("/api/auth/login", userAPIHandler.SessionHandler()).Methods("GET")
	router.Handle("/api/auth/login", userAPIHandler.LogoutUserHandler()).Methods("DELETE")
	router.Handle("/api/admin/register", restapi.NoStore(userAPIHandler.RegisterAdminHandler())).Methods("POST")

	// set admin api. Every route requires an admin session
	adminRouter := router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(restapi.NoStore, restapi.RequireAdmin(env.Auth, log.New(os.Stdout, "[restApi.auth] INFO: ", log.Ltime)))
	adminRouter.Handle("/posts", postAPIHandler.GetAllPostsHandler()).Methods("GET")
	adminRouter.Handle("/posts", postAPIHandler.CreatePostHandler()).Methods("POST")
	adminRouter.Handle("/posts/{id}", postAPIHandler.UpdatePostHandler()).Methods("PUT")
	adminRouter.Handle("/posts/{id}", postAPIHandler.DeletePostHandler()).Methods("DELETE")
	adminRouter.Handle("/upload", uploadAPIHandler.UploadImageHandler()).Methods("POST")

	// set uploaded files path
	if env.UploadDir != "" {
		prefix := strings.TrimSuffix(env.Config.Upload.PublicURL, "/") + "/"
		router.PathPrefix(prefix).Handler(restapi.SandboxedFiles(
			http.StripPrefix(prefix, http.FileServer(http.Dir(env.UploadDir))))).Methods("GET")
	}

	return otelhttp.NewHandler(router, "http.server")
}

// Setup - opens every store and service configured in cfg
// On error everything opened so far is closed
func Setup(ctx context.Context, cfg *settings.Config) (env *Env, err error) {
	env = &Env{Config: cfg, Metrics: telemetry.NewMetrics()}
	defer func() {
		if err != nil {
			env.Close()
			env = nil
		}
	}()

	logInfo.Printf("Opening %s database...", cfg.Database.Driver)
	if err = ensureSQLiteDir(cfg.Database); err != nil {
		return env, err
	}
	env.DB, err = docstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return env, err
	}
	env.onClose(env.DB)
	if err = userService.Migrate(ctx, env.DB); err != nil {
		return env, err
	}
	logInfo.Print("Database successfully opened")

	if cfg.Auth.AdminPassword != "" {
		created, err := userService.EnsureAdmin(ctx, env.DB, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		if err != nil {
			return env, fmt.Errorf("seed admin user: %w", err)
		}
		if created {
			logInfo.Printf("Admin user created. Email: %s", cfg.Auth.AdminEmail)
		}
	}

	if env.Client, err = openCMS(ctx, cfg, env.DB); err != nil {
		return env, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return env, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		logInfo.Printf("Connected to redis on %s", cfg.Redis.Addr)
	}

	switch cfg.FallbackBackend {
	case settings.BackendRedis:
		env.Fallback = fallback.NewRedisStore(rdb, cfg.Redis.Prefix)
	case settings.BackendFile:
		if env.Fallback, err = fallback.NewFileStore(cfg.FallbackDir); err != nil {
			return env, err
		}
	default:
		env.Fallback = fallback.NewMemoryStore()
	}
	// redis store owns the client
	env.onClose(env.Fallback)
	if rdb != nil && cfg.FallbackBackend != settings.BackendRedis {
		env.onClose(rdb)
	}

	if cfg.Outbox.Backend == settings.BackendKafka {
		_, kafkaLogError := loggers("outbox.kafka")
		env.Outbox = outbox.NewKafkaQueue(outbox.KafkaConfig{
			Brokers: cfg.Outbox.KafkaBrokers,
			Topic:   cfg.Outbox.KafkaTopic,
			GroupID: cfg.Outbox.KafkaGroupID,
		}, kafkaLogError)
	} else {
		env.Outbox = outbox.NewMemoryQueue()
	}
	env.onClose(env.Outbox)

	trackingLogInfo, trackingLogError := loggers("trackingService")
	env.Tracker = trackingService.NewTracker(env.Client, env.Fallback, env.Outbox, env.Metrics,
		trackingLogInfo, trackingLogError)

	if env.Index, err = search.Open(cfg.SearchIndexPath); err != nil {
		return env, err
	}
	env.onClose(env.Index)
	rebuildIndex(ctx, env)

	env.Auth = authService.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.SecureCookies)

	if err = openUploader(ctx, env); err != nil {
		return env, err
	}

	if cfg.RateLimit.Requests > 0 {
		if rdb != nil {
			env.Limiter = restapi.NewRedisLimiter(rdb, cfg.Redis.Prefix, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		} else {
			env.Limiter = restapi.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		}
	}
	return env, nil
}

func openCMS(ctx context.Context, cfg *settings.Config, db *sql.DB) (cms.Client, error) {
	switch cfg.CMSBackend {
	case settings.BackendSanity:
		logInfo.Printf("Using sanity document store. Project: %s, dataset: %s", cfg.Sanity.ProjectID, cfg.Sanity.Dataset)
		return sanity.New(sanity.Config{
			ProjectID:  cfg.Sanity.ProjectID,
			Dataset:    cfg.Sanity.Dataset,
			APIVersion: cfg.Sanity.APIVersion,
			Token:      cfg.Sanity.Token,
			UseCDN:     cfg.Sanity.UseCDN,
		})
	case settings.BackendSQL:
		logInfo.Printf("Using %s document store", cfg.Database.Driver)
		store := docstore.New(db, cfg.Database.Driver)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		logInfo.Print("Using in-memory document store. Posts are lost on restart")
		return memstore.New(), nil
	}
}

func openUploader(ctx context.Context, env *Env) error {
	cfg := env.Config
	switch cfg.Upload.Backend {
	case settings.BackendSanity:
		assets, ok := env.Client.(cms.AssetUploader)
		if !ok {
			return errors.New("document store can't upload assets")
		}
		env.Uploader = media.NewAssetUploader(assets, cfg.Upload.MaxBytes)
	case settings.BackendS3:
		storage, err := media.NewS3Storage(media.S3Config{
			Endpoint:  cfg.Upload.S3.Endpoint,
			AccessKey: cfg.Upload.S3.AccessKey,
			SecretKey: cfg.Upload.S3.SecretKey,
			UseSSL:    cfg.Upload.S3.UseSSL,
			Bucket:    cfg.Upload.S3.Bucket,
			PublicURL: cfg.Upload.S3.PublicURL,
		})
		if err != nil {
			return fmt.Errorf("create s3 client: %w", err)
		}
		if err = storage.EnsureBucket(ctx); err != nil {
			return err
		}
		env.Uploader = media.NewStorageUploader(storage, env.Client, cfg.Upload.MaxBytes)
	default:
		storage, err := media.NewLocalStorage(cfg.Upload.Dir, cfg.Upload.PublicURL)
		if err != nil {
			return err
		}
		env.UploadDir = storage.Dir()
		env.Uploader = media.NewStorageUploader(storage, env.Client, cfg.Upload.MaxBytes)
	}
	return nil
}

// rebuildIndex - fills the search index from the document store. Failure leaves the index empty
func rebuildIndex(ctx context.Context, env *Env) {
	posts, err := postService.GetPublished(ctx, env.Client, "")
	if err != nil {
		logError.Printf("Can't build search index: error getting posts. Error: %s", err)
		return
	}
	if err = env.Index.Rebuild(posts); err != nil {
		logError.Printf("Can't build search index: %s", err)
		return
	}
	logInfo.Printf("Search index built. Posts: %d", len(posts))
}

// ensureSQLiteDir - SQLite doesn't create missing directories of the database file
func ensureSQLiteDir(db settings.Database) error {
	if db.Driver != docstore.DriverSQLite {
		return nil
	}
	path := strings.TrimPrefix(db.DSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// RunServer - serves the API until SIGINT or SIGTERM
func RunServer(cfg *settings.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logError.Printf("Error shutting down tracing: %s", err)
		}
	}()

	env, err := Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	reconcilerDone := make(chan struct{})
	reconciler := env.Tracker.Reconciler(cfg.Outbox.MaxAttempts, cfg.Outbox.RetryDelay)
	go func() {
		defer close(reconcilerDone)
		reconciler.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(env),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logInfo.Printf("Starting server on port %s", cfg.Port)
		// omitting host will run server on all interfaces
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		stop()
		<-reconcilerDone
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logInfo.Print("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		logError.Printf("Error shutting down server: %s", err)
	}
	<-reconcilerDone
	logInfo.Print("Server stopped")
	return nil
}
