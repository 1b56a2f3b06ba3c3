package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nerrad567/robolink-gateway/internal/infrastructure/config"
)

const (
	defaultPort    = 5432
	defaultSSLMode = "disable"
	connectTimeout = 10 * time.Second
)

// Pool wraps a pgxpool.Pool.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Pool struct {
	*pgxpool.Pool
}

// ConnString builds a postgres:// URL from cfg.
func ConnString(cfg config.PostgresConfig) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Host + ":" + strconv.Itoa(port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}

	q := u.Query()
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}
	q.Set("sslmode", sslMode)
	if cfg.ApplicationName != "" {
		q.Set("application_name", cfg.ApplicationName)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// PoolConfig parses cfg into a pgxpool configuration with the pool limits applied.
func PoolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if poolConfig.MinConns > poolConfig.MaxConns {
		return nil, fmt.Errorf("%w: min_conns %d exceeds max_conns %d",
			ErrInvalidConfig, poolConfig.MinConns, poolConfig.MaxConns)
	}

	return poolConfig, nil
}

// Connect creates the pool and verifies connectivity with a ping.
//
// Parameters:
//   - ctx: Bounds pool creation and the initial ping
//   - cfg: The postgres section of config.yaml
//
// Returns:
//   - *Pool: Ready-to-use pool
//   - error: ErrInvalidConfig or ErrConnectionFailed, wrapped
func Connect(ctx context.Context, cfg config.PostgresConfig) (*Pool, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Host, cfg.Port, err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck pings the server.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Close closes every connection in the pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
