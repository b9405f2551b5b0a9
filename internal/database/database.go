package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"yolotrain/internal/config"
)

func init() {
	// modernc registers itself as "sqlite" which sqlx does not know about
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// New connects to the configured database and makes sure the schema exists
func New(conf *config.YTConfig) (*sqlx.DB, error) {
	switch conf.Database.Driver {
	case "sqlite":
		return Open("sqlite", conf.GetDatabaseURL())
	case "postgres", "":
		return Open("pgx", conf.GetDatabaseURL())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", conf.Database.Driver)
	}
}

// Open connects with an explicit driver name and data source and runs Migrate
func Open(driver, dsn string) (*sqlx.DB, error) {
	if driver == "sqlite" {
		if path := sqlitePath(dsn); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent schema migrations for the connected dialect
func Migrate(ctx context.Context, db *sqlx.DB) error {
	statements := postgresSchema
	if db.DriverName() == "sqlite" {
		statements = sqliteSchema
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	log.Debug().Str("driver", db.DriverName()).Msg("Database schema is up to date")
	return nil
}

func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS dataset (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT        NOT NULL,
	task_type   TEXT        NOT NULL,
	description TEXT,
	path        TEXT        NOT NULL,
	file_count  INTEGER     NOT NULL DEFAULT 0,
	status      TEXT        NOT NULL DEFAULT 'ready',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS training_task (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT             NOT NULL,
	dataset_id    BIGINT           NOT NULL REFERENCES dataset (id) ON DELETE CASCADE,
	model_type    TEXT             NOT NULL,
	task_type     TEXT             NOT NULL,
	epochs        INTEGER          NOT NULL DEFAULT 100,
	batch_size    INTEGER          NOT NULL DEFAULT 16,
	img_size      INTEGER          NOT NULL DEFAULT 640,
	status        TEXT             NOT NULL DEFAULT 'pending',
	progress      DOUBLE PRECISION NOT NULL DEFAULT 0,
	current_epoch INTEGER          NOT NULL DEFAULT 0,
	logs          TEXT,
	output_path   TEXT,
	created_at    TIMESTAMPTZ      NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS model (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT        NOT NULL,
	task_id     BIGINT      REFERENCES training_task (id) ON DELETE SET NULL,
	task_type   TEXT        NOT NULL,
	model_type  TEXT        NOT NULL,
	weight_path TEXT        NOT NULL,
	output_path TEXT,
	metrics     TEXT,
	size        BIGINT      NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS training_task_status_idx ON training_task (status)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS dataset (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT     NOT NULL,
	task_type   TEXT     NOT NULL,
	description TEXT,
	path        TEXT     NOT NULL,
	file_count  INTEGER  NOT NULL DEFAULT 0,
	status      TEXT     NOT NULL DEFAULT 'ready',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS training_task (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT     NOT NULL,
	dataset_id    INTEGER  NOT NULL REFERENCES dataset (id) ON DELETE CASCADE,
	model_type    TEXT     NOT NULL,
	task_type     TEXT     NOT NULL,
	epochs        INTEGER  NOT NULL DEFAULT 100,
	batch_size    INTEGER  NOT NULL DEFAULT 16,
	img_size      INTEGER  NOT NULL DEFAULT 640,
	status        TEXT     NOT NULL DEFAULT 'pending',
	progress      REAL     NOT NULL DEFAULT 0,
	current_epoch INTEGER  NOT NULL DEFAULT 0,
	logs          TEXT,
	output_path   TEXT,
	created_at    DATETIME NOT NULL,
	started_at    DATETIME,
	completed_at  DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS model (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT     NOT NULL,
	task_id     INTEGER  REFERENCES training_task (id) ON DELETE SET NULL,
	task_type   TEXT     NOT NULL,
	model_type  TEXT     NOT NULL,
	weight_path TEXT     NOT NULL,
	output_path TEXT,
	metrics     TEXT,
	size        INTEGER  NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS training_task_status_idx ON training_task (status)`,
}
