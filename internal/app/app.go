package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"diagnostics/internal/cache"
	"diagnostics/internal/config"
	"diagnostics/internal/event"
	"diagnostics/internal/logger"
	"diagnostics/internal/repository"
	"diagnostics/internal/service"
	"diagnostics/internal/transport/rest"
	"diagnostics/internal/transport/ws"
)

// Stores bundles the MongoDB side of the app. The seed command uses it on its own.
type Stores struct {
	Client     *mongo.Client
	DB         *mongo.Database
	Students   repository.StudentRepo
	Curriculum repository.CurriculumRepo
	Catalog    repository.QuestionRepo
	Sessions   repository.SessionRepo
	Questions  repository.AssessmentQuestionRepo
}

// OpenStores connects to MongoDB and builds every repository
func OpenStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Stores, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Info("connected to MongoDB", "db", cfg.MongoDB)

	db := client.Database(cfg.MongoDB)
	return &Stores{
		Client:     client,
		DB:         db,
		Students:   repository.NewStudentRepo(db),
		Curriculum: repository.NewCurriculumRepo(db, log),
		Catalog:    repository.NewQuestionRepo(db, log),
		Sessions:   repository.NewSessionRepo(db, log),
		Questions:  repository.NewAssessmentQuestionRepo(db, log),
	}, nil
}

// Close disconnects from MongoDB
func (s *Stores) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// App is the composition root of the diagnostics server
type App struct {
	Config *config.Config
	Log    *logger.Logger

	Stores    *Stores
	Redis     *redis.Client
	Publisher event.Publisher
	Hub       *ws.Hub

	Auth       *service.AuthService
	Selector   *service.QuestionSelector
	Engine     *service.DiagnosticService
	Completion *service.CompletionService
	Responses  *service.ResponseService
	Status     *service.StatusService
}

// New connects every backing service and wires the service graph
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		stores.Close(ctx)
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	log.Info("connected to Redis", "addr", cfg.RedisAddr)

	publisher, err := event.NewRabbitPublisher(cfg.RabbitURI, cfg.RabbitExchange, log)
	if err != nil {
		rdb.Close()
		stores.Close(ctx)
		return nil, err
	}

	hub := ws.NewHub(log)
	flags := cache.NewGenerationFlagCache(rdb, cfg.Engine.GenerationFlagTTL)

	selector := service.NewQuestionSelector(stores.Catalog, stores.Curriculum, log)
	engine := service.NewDiagnosticService(service.Stores{
		Students:   stores.Students,
		Curriculum: stores.Curriculum,
		Catalog:    stores.Catalog,
		Sessions:   stores.Sessions,
		Questions:  stores.Questions,
		Tx:         repository.NewTxRunner(stores.Client),
	},
		cache.NewSessionStateCache(rdb, cfg.Engine.StateTTL),
		flags, selector, cfg.Engine, log,
	)
	completion := service.NewCompletionService(engine, flags, publisher, log)
	responses := service.NewResponseService(engine, stores.Questions, stores.Catalog, completion, log)
	status := service.NewStatusService(engine, stores.Questions, log)

	// Inject broadcaster (hub implements service.Broadcaster)
	engine.SetBroadcaster(hub)
	completion.SetBroadcaster(hub)
	responses.SetBroadcaster(hub)
	engine.SetCompletionHook(completion.Hook())

	return &App{
		Config:     cfg,
		Log:        log,
		Stores:     stores,
		Redis:      rdb,
		Publisher:  publisher,
		Hub:        hub,
		Auth:       service.NewAuthService(cfg.JWTSecret),
		Selector:   selector,
		Engine:     engine,
		Completion: completion,
		Responses:  responses,
		Status:     status,
	}, nil
}

// Router builds the HTTP surface
func (a *App) Router() http.Handler {
	return rest.NewRouter(&rest.Container{
		AuthService:     a.Auth,
		Engine:          a.Engine,
		ResponseService: a.Responses,
		StatusService:   a.Status,
		WSHub:           a.Hub,
		AllowOrigins:    a.Config.CORSAllowOrigins,
		Log:             a.Log,
	})
}

// Close releases connections in reverse order of creation
func (a *App) Close(ctx context.Context) {
	a.Hub.Close()
	if err := a.Publisher.Close(); err != nil {
		a.Log.Warn("failed to close event publisher", "error", err)
	}
	if err := a.Redis.Close(); err != nil {
		a.Log.Warn("failed to close Redis", "error", err)
	}
	if err := a.Stores.Close(ctx); err != nil {
		a.Log.Warn("failed to disconnect MongoDB", "error", err)
	}
}
