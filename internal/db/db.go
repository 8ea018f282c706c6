package db

import (
	"context"
	"fmt"
	"time"

	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB wraps the gorm handle and the pool that backs it, if any.
type DB struct {
	*gorm.DB
	pool *pgxpool.Pool
}

// OpenPostgres initializes the PostgreSQL connection pool and layers gorm on top of it.
func OpenPostgres(ctx context.Context, connString string) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to open gorm: %w", err)
	}

	logger.Info().Msg("Connected to PostgreSQL")
	return &DB{DB: gdb, pool: pool}, nil
}

// OpenSQLite opens a SQLite database, used for local development and tests.
func OpenSQLite(dsn string) (*DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to get sql.DB: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps shared in-memory databases alive.
	sqlDB.SetMaxOpenConns(1)
	logger.Info().Str("dsn", dsn).Msg("Opened SQLite database")
	return &DB{DB: gdb}, nil
}

// Migrate creates or updates every table the service uses.
func (d *DB) Migrate() error {
	err := d.AutoMigrate(
		&models.User{},
		&models.UserMute{},
		&models.UserBlock{},
		&models.UserChatTheme{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.TypingState{},
		&models.Message{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (d *DB) Close() {
	if sqlDB, err := d.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
