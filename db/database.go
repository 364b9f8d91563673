package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"youbble/config"
	"youbble/logger"

	"github.com/go-sql-driver/mysql"
)

// mysqlConfig builds the driver configuration from the application config.
func mysqlConfig(cfg *config.Config) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%s", cfg.DBHost, cfg.DBPort)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc
}

// DSN returns the MySQL data source name for cfg.
func DSN(cfg *config.Config) string {
	return mysqlConfig(cfg).FormatDSN()
}

// ConnectDB establishes a connection to the MySQL database.
func ConnectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	conn, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxIdleConns(10)
	conn.SetMaxOpenConns(50)
	conn.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to MySQL",
		logger.String("host", cfg.DBHost),
		logger.String("db", cfg.DBName))
	return conn, nil
}
