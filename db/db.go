package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ziksir-notes/config"
	"ziksir-notes/store"
)

const connectAttempts = 5

// Connect opens the backend selected by cfg.DBDriver, waits for it to
// answer and creates the schema. The returned *sql.DB is nil for the
// non-SQL backends.
func Connect(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (store.Store, *sql.DB, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil, nil
	case config.DriverMongo:
		s, err := connectMongo(ctx, cfg, log)
		return s, nil, err
	case config.DriverMySQL, config.DriverPostgres:
		sqlDB, dialect, err := openSQL(cfg)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewSQLStore(sqlDB, dialect)
		if err := pingWithRetry(ctx, s, log); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return s, sqlDB, nil
	default:
		return nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func openSQL(cfg config.Config) (*sql.DB, store.Dialect, error) {
	driver, dsn, dialect := "pgx", cfg.DSN, store.Postgres
	if cfg.DBDriver == config.DriverMySQL {
		var err error
		if dsn, err = mysqlDSN(cfg.DSN); err != nil {
			return nil, "", err
		}
		driver, dialect = "mysql", store.MySQL
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", driver, err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return sqlDB, dialect, nil
}

// mysqlDSN forces the options the store relies on: DATETIME columns
// scanned into time.Time, in UTC.
func mysqlDSN(raw string) (string, error) {
	mc, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}

func connectMongo(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (store.Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	s := store.NewMongoStore(client.Database(cfg.MongoDatabase))
	if err := pingWithRetry(ctx, s, log); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func pingWithRetry(ctx context.Context, s store.Store, log logrus.FieldLogger) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = s.Ping(ctx); err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("database not ready, retrying")
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to reach database: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return fmt.Errorf("failed to reach database after %d attempts: %w", connectAttempts, err)
}
