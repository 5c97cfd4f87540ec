package utils

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// PostgresConfig：连接参数；零值字段使用默认值
type PostgresConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DB           string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

func BuildPostgresDSN(c PostgresConfig) string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	user := c.User
	if user == "" {
		user = "postgres"
	}
	db := c.DB
	if db == "" {
		db = "scouter"
	}
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	dsn := "postgres://" + user
	if c.Password != "" {
		dsn += ":" + c.Password
	}
	dsn += "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
	return dsn
}

func OpenPostgres(c PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", BuildPostgresDSN(c))
	if err != nil {
		return nil, err
	}
	maxOpen, maxIdle := 50, 25
	if c.MaxOpenConns > 0 {
		maxOpen = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		maxIdle = c.MaxIdleConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return db, nil
}

// OpenSQLite：嵌入式存储，单连接串行写入，避免 database is locked
func OpenSQLite(path string) (*sqlx.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenDB：按驱动名打开事件库
func OpenDB(driver string, pg PostgresConfig, sqlitePath string) (*sqlx.DB, error) {
	switch driver {
	case "postgres", "":
		return OpenPostgres(pg)
	case "sqlite":
		return OpenSQLite(sqlitePath)
	}
	return nil, fmt.Errorf("unsupported store driver %q", driver)
}
