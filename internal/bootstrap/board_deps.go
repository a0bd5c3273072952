package bootstrap

import (
	"strings"
	"time"

	"mailboard_server/adapter/out/ai"
	"mailboard_server/adapter/out/cache"
	"mailboard_server/adapter/out/persistence"
	"mailboard_server/adapter/out/provider"
	"mailboard_server/config"
	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/core/service/auth"
	"mailboard_server/core/service/column"
	"mailboard_server/core/service/enrich"
	"mailboard_server/core/service/mailbox"
	"mailboard_server/core/service/message"
	"mailboard_server/core/service/search"
	"mailboard_server/core/service/snooze"
	syncservice "mailboard_server/core/service/sync"
	"mailboard_server/infra/database"
	"mailboard_server/pkg/logger"
	"mailboard_server/pkg/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Dependencies wires every adapter and service once so the API server
// and the background worker share a single construction path.
type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Repositories
	UserRepo       out.UserRepository
	MailboxRepo    out.MailboxRepository
	MessageRepo    out.MessageRepository
	ColumnRepo     out.ColumnRepository
	AttachmentRepo out.AttachmentRepository

	// Outbound adapters
	GmailProvider *provider.GmailAdapter
	AIClient      *ai.Client
	SearchHistory out.SearchHistory

	// Services
	TokenService   *auth.TokenService
	SyncService    *syncservice.SyncService
	ColumnService  *column.Service
	MessageService *message.Service
	MailboxService *mailbox.Service
	SearchService  *search.Service
	EnrichService  *enrich.Service
	SnoozeService  *snooze.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Database (pgxpool, used by health checks)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the persistence adapters)
	// simple_protocol avoids prepared statement conflicts under PgBouncer
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	metrics.RegisterPool("postgres", sqlDB.DB)

	// Redis (rate limiting, recent searches)
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	// Repositories
	deps.UserRepo = persistence.NewUserAdapter(sqlDB)
	deps.MailboxRepo = persistence.NewMailboxAdapter(sqlDB)
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.ColumnRepo = persistence.NewColumnAdapter(sqlDB)
	deps.AttachmentRepo = persistence.NewAttachmentAdapter(sqlDB)

	// Outbound adapters
	deps.GmailProvider = provider.NewGmailAdapter(&provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	deps.AIClient = ai.NewClient(ai.ClientConfig{
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		EmbeddingDims:  cfg.EmbeddingDims,
		MaxTokens:      cfg.LLMMaxTokens,
		Temperature:    cfg.LLMTemperature,
		TimeoutSec:     cfg.LLMTimeoutSec,
	})
	deps.SearchHistory = cache.NewSearchHistoryAdapter(redisClient)

	// Services
	deps.TokenService = auth.NewTokenService(deps.MailboxRepo, deps.GmailProvider, cfg.TokenRefreshHorizon)
	deps.SyncService = syncservice.NewSyncService(
		deps.MailboxRepo,
		deps.MessageRepo,
		deps.AttachmentRepo,
		deps.ColumnRepo,
		deps.GmailProvider,
		deps.TokenService,
		cfg.SyncPageSize,
		cfg.SyncMaxMessages,
	)
	deps.ColumnService = column.NewService(deps.ColumnRepo, deps.MailboxRepo, deps.GmailProvider, deps.TokenService)
	deps.MessageService = message.NewService(
		deps.MessageRepo,
		deps.MailboxRepo,
		deps.ColumnRepo,
		deps.AttachmentRepo,
		deps.GmailProvider,
		deps.TokenService,
		deps.ColumnService,
		deps.AIClient,
	)
	deps.MailboxService = mailbox.NewService(
		deps.MailboxRepo,
		deps.MessageRepo,
		deps.ColumnRepo,
		deps.GmailProvider,
		deps.TokenService,
		deps.SyncService,
		deps.ColumnService,
	)
	deps.SearchService = search.NewService(
		deps.MessageRepo,
		deps.MailboxRepo,
		deps.AIClient,
		deps.SearchHistory,
		search.Options{
			Weights: domain.SearchWeights{
				Subject: cfg.SearchSubjectWeight,
				Sender:  cfg.SearchSenderWeight,
				Body:    cfg.SearchBodyWeight,
			},
			FuzzyThreshold: cfg.SearchFuzzyThreshold,
			SemanticFloor:  cfg.SearchSemanticFloor,
			RecentLimit:    cfg.RecentSearchLimit,
		},
	)
	deps.EnrichService = enrich.NewService(deps.MessageRepo, deps.AIClient, cfg.EnrichBatchSize)
	deps.SnoozeService = snooze.NewService(deps.MessageRepo, cfg.SnoozeBatchSize)

	logger.Info("Dependencies initialized")
	return deps, cleanup, nil
}
