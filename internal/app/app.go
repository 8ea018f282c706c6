package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatwave-backend/internal/assist"
	"chatwave-backend/internal/chat"
	"chatwave-backend/internal/config"
	"chatwave-backend/internal/db"
	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/handlers"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/services"
	"chatwave-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

const bodyLimit = 25 * 1024 * 1024

// Server holds everything the HTTP routes need.
type Server struct {
	Users     *services.UserService
	Chats     *services.ChatService
	Tokens    *services.TokenIssuer
	Notifier  feed.Notifier
	Assist    chat.Assistant
	Presence  *handlers.Presence
	Options   chat.Options
	UploadDir string // served under /uploads when set
	AccessLog bool
}

// NewApp builds the fiber app with all routes.
func NewApp(s Server) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit,
		ErrorHandler: handlers.ErrorHandler,
	})

	if s.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(recover.New())
	app.Use(cors.New())

	if s.UploadDir != "" {
		app.Static("/uploads", s.UploadDir)
	}

	api := app.Group("/api")

	// Public Routes
	api.Post("/register", handlers.RegisterHandler(s.Users))
	api.Post("/login", handlers.LoginHandler(s.Users))
	api.Post("/refresh", handlers.RefreshHandler(s.Users))

	// Protected Routes
	protected := api.Group("/", handlers.AuthMiddleware(s.Tokens))

	protected.Post("/logout", handlers.LogoutHandler(s.Users))

	protected.Get("/users", handlers.ListUsersHandler(s.Users, s.Presence))
	protected.Post("/users/:id/block", handlers.ToggleBlockHandler(s.Users))

	protected.Get("/profile", handlers.GetProfileHandler(s.Users))
	protected.Put("/profile", handlers.UpdateProfileHandler(s.Users))
	protected.Put("/profile/avatar", handlers.UploadAvatarHandler(s.Users))

	protected.Post("/rooms", handlers.CreateRoomHandler(s.Chats))
	protected.Post("/rooms/direct", handlers.DirectRoomHandler(s.Users, s.Chats))
	protected.Post("/rooms/:id/members", handlers.AddMembersHandler(s.Chats))
	protected.Delete("/rooms/:id", handlers.DeleteRoomHandler(s.Chats))

	protected.Get("/chats/:id/messages", handlers.ListMessagesHandler(s.Users, s.Chats))
	protected.Post("/chats/:id/messages", handlers.SendMessageHandler(s.Users, s.Chats))
	protected.Patch("/chats/:id/messages/:mid", handlers.EditMessageHandler(s.Chats))
	protected.Delete("/chats/:id/messages/:mid", handlers.DeleteMessageHandler(s.Chats))
	protected.Post("/chats/:id/messages/:mid/star", handlers.StarMessageHandler(s.Chats))
	protected.Post("/chats/:id/mute", handlers.ToggleMuteHandler(s.Users))
	protected.Put("/chats/:id/theme", handlers.SetThemeHandler(s.Users))
	protected.Post("/chats/:id/summary", handlers.SummaryHandler(s.Users, s.Chats, s.Assist))

	// Health Check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WSUpgradeMiddleware must run before auth so plain requests get 426.
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Use("/ws", handlers.AuthMiddleware(s.Tokens))
	app.Get("/ws", handlers.WebSocketHandler(handlers.WSDeps{
		Users:    s.Users,
		Chats:    s.Chats,
		Notifier: s.Notifier,
		Assist:   s.Assist,
		Presence: s.Presence,
		Options:  s.Options,
	}))

	return app
}

func Run() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	database, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate database")
	}

	notifier, closeNotifier, err := openNotifier(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer closeNotifier()

	blobs, uploadDir, err := openBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure storage")
	}

	tokens := services.NewTokenIssuer(cfg.JWTSecret)
	server := Server{
		Users:     services.NewUserService(database, notifier, blobs, tokens),
		Chats:     services.NewChatService(database, notifier, blobs, services.PolicyByName(cfg.AuthPolicy)),
		Tokens:    tokens,
		Notifier:  notifier,
		Assist:    newAssistant(cfg),
		Presence:  handlers.NewPresence(),
		Options:   chat.Options{TypingIdle: cfg.TypingIdle(), SuggestDebounce: cfg.SuggestDebounce()},
		UploadDir: uploadDir,
		AccessLog: true,
	}
	app := NewApp(server)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	// Graceful Shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c // Block until signal
	logger.Info().Msg("Gracefully shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.LogError(err, "shutdown")
	}
	logger.Info().Msg("Server shutdown complete")
}

func openDatabase(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.DatabaseDriver == "sqlite" {
		return db.OpenSQLite(cfg.SQLitePath)
	}
	return db.OpenPostgres(ctx, cfg.PostgresDSN())
}

// openNotifier uses Redis pub/sub when REDIS_ADDR is set so several instances
// share one change feed. Otherwise notifications stay in process.
func openNotifier(ctx context.Context, cfg *config.Config) (feed.Notifier, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("Using in-process change feed")
		return feed.NewLocalNotifier(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	n, err := feed.NewRedisNotifier(ctx, rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("Using redis change feed")
	return n, func() {
		logger.LogError(n.Close(), "close notifier")
		logger.LogError(rdb.Close(), "close redis")
	}, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, string, error) {
	switch cfg.StorageDriver {
	case "s3":
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicURL:       cfg.S3PublicURL,
		})
		return s, "", err
	case "local":
		s, err := storage.NewLocalStore(cfg.UploadDir, cfg.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	default:
		return nil, "", errors.New("unknown storage driver " + cfg.StorageDriver)
	}
}

func newAssistant(cfg *config.Config) *assist.Bridge {
	if cfg.OpenAIAPIKey == "" {
		logger.Info().Msg("OPENAI_API_KEY not set, suggestions and summaries disabled")
		return assist.NewBridge(assist.NoopCompleter{}, cfg.AIRatePerMinute)
	}
	return assist.NewBridge(assist.NewOpenAICompleter(assist.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	}), cfg.AIRatePerMinute)
}
