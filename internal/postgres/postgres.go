// Package postgres opens pgx connection pools.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	pgxslog "github.com/mcosta74/pgx-slog"
)

const (
	DefaultMaxConns = 16
	DefaultMinConns = 0
)

type Config struct {
	// URL wins over the other connection fields.
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`

	// Debug traces every query.
	Debug bool `mapstructure:"debug"`
}

// NewPool connects a pool and pings the database.
func NewPool(ctx context.Context, conf Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(conf.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse postgres config")
	}
	poolConfig.MaxConns = utils.Default(conf.MaxConns, DefaultMaxConns)
	poolConfig.MinConns = utils.Default(conf.MinConns, DefaultMinConns)
	poolConfig.ConnConfig.Tracer = conf.queryTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	return pool, nil
}

// String returns the connection string, URL or keyword/value DSN.
func (conf Config) String() string {
	if conf.URL != "" {
		return conf.URL
	}
	params := []string{
		"host=" + utils.Default(conf.Host, "127.0.0.1"),
		"port=" + utils.Default(conf.Port, "5432"),
		"dbname=" + utils.Default(conf.DBName, "postgres"),
		"sslmode=" + utils.Default(conf.SSLMode, "prefer"),
	}
	if conf.User != "" {
		params = append(params, "user="+conf.User)
	}
	if conf.Password != "" {
		params = append(params, fmt.Sprintf("password=%s", conf.Password))
	}
	return strings.Join(params, " ")
}

func (conf Config) queryTracer() pgx.QueryTracer {
	level := tracelog.LogLevelError
	if conf.Debug {
		level = tracelog.LogLevelTrace
	}
	return &tracelog.TraceLog{
		Logger:   pgxslog.NewLogger(logger.With(slogx.String("package", "postgres"))),
		LogLevel: level,
	}
}
