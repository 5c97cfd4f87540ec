package migrate

import (
	"context"
	"database/sql"

	"scouter/internal/logger"
)

// EnsureSchema：首次运行自动创建事件表与索引
// 约束：使用 IF NOT EXISTS 保证可重复执行；方言差异只在文档列类型（postgres 为 JSONB，sqlite 为 TEXT）
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	docType := "TEXT"
	if driver == "postgres" {
		docType = "JSONB"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
            id TEXT PRIMARY KEY,
            source TEXT NOT NULL,
            score INTEGER NOT NULL,
            start_ms BIGINT NOT NULL,
            end_ms BIGINT NOT NULL,
            min_lat DOUBLE PRECISION NOT NULL,
            min_lon DOUBLE PRECISION NOT NULL,
            max_lat DOUBLE PRECISION NOT NULL,
            max_lon DOUBLE PRECISION NOT NULL,
            doc ` + docType + ` NOT NULL,
            created_ms BIGINT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_events_window ON events(start_ms, end_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_events_envelope ON events(min_lat, max_lat, min_lon, max_lon)`,
		`CREATE INDEX IF NOT EXISTS idx_events_source ON events(source)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i, "driver", driver)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
