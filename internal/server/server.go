package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bookhive/apiserver/config"
	"github.com/bookhive/apiserver/internal/auth"
	"github.com/bookhive/apiserver/internal/db"
	"github.com/bookhive/apiserver/internal/handlers"
	"github.com/bookhive/apiserver/internal/mq"
	"github.com/bookhive/apiserver/internal/services"
	"github.com/bookhive/apiserver/internal/storage"
	"github.com/bookhive/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and its long-lived resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  mq.Publisher
}

// New constructs a Server: opens the database, selects the storage and
// broker backends, and wires the routers. The JWT secret is required;
// its absence is startup-fatal, never a per-request error.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	issuer := auth.NewIssuer([]byte(jwtSecret), cfg.TokenTTL)

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	covers, err := newCoverStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	accountRepo := store.NewAccountRepository(dbConn)
	bookRepo := store.NewBookRepository(dbConn)

	accountService := services.NewAccountService(accountRepo, logger)
	bookService := services.NewBookService(bookRepo, covers, publisher, logger)

	authMiddleware := handlers.RequireAuth(issuer)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, accountService, issuer, logger)
	router.Route("/books", func(r chi.Router) {
		handlers.BookRouter(r, bookService, authMiddleware, logger)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

func newCoverStorage(ctx context.Context, cfg config.Config) (storage.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendMinio:
		covers, err := storage.NewMinioStorage(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := covers.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return covers, nil
	case config.StorageBackendGCS:
		covers, err := storage.NewGCSStorage(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		if err := covers.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return covers, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newPublisher(ctx context.Context, cfg config.Config) (mq.Publisher, error) {
	switch cfg.MQBackend {
	case config.MQBackendRabbitMQ:
		return mq.NewRabbitMQPublisher(cfg.RabbitMQ)
	case config.MQBackendPubSub:
		return mq.NewPubSubPublisher(ctx, cfg.PubSub)
	case config.MQBackendNone, "":
		return mq.NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQBackend)
	}
}
