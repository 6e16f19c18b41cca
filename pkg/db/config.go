package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config describes the directory database and its connection pool.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// LogQueries logs every statement at debug level instead of only
	// failures and slow queries.
	LogQueries bool
}

// Dialector returns the GORM dialector for the configured database type.
// SQLite takes Name as the file path and defaults to directory.db.
func (c Config) Dialector() (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "postgres", "postgresql":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port, c.sslMode())), nil
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name)), nil
	case "sqlite":
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = "directory.db"
		}
		return sqlite.Open(name), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", c.Type)
	}
}

func (c Config) sslMode() string {
	if strings.TrimSpace(c.SSLMode) == "" {
		return "disable"
	}
	return c.SSLMode
}
