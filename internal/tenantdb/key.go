package tenantdb

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/selcuk9494/react-sub001/internal/domain"
)

const DefaultPort = 5432

// PoolKey identifies a distinct database target. Branches that resolve to the
// same key share one pool.
type PoolKey struct {
	Host     string
	Port     int
	Database string
	User     string
}

func (k PoolKey) String() string {
	return k.User + "@" + net.JoinHostPort(k.Host, strconv.Itoa(k.Port)) + "/" + k.Database
}

func KeyFor(cfg domain.BranchConfig) PoolKey {
	return PoolKey{
		Host:     strings.ToLower(strings.TrimSpace(cfg.Host)),
		Port:     NormalizePort(cfg.Port),
		Database: strings.TrimSpace(cfg.Database),
		User:     strings.TrimSpace(cfg.User),
	}
}

// NormalizePort parses a configured port, falling back to 5432 for empty or
// malformed values.
func NormalizePort(raw string) int {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 1 || port > 65535 {
		return DefaultPort
	}
	return port
}

var managedHostSuffixes = []string{
	".neon.tech",
	".supabase.co",
	".supabase.com",
	".rds.amazonaws.com",
	".postgres.database.azure.com",
	".render.com",
	".aivencloud.com",
}

// RequiresTLS reports whether host belongs to a managed Postgres provider
// that only accepts encrypted connections.
func RequiresTLS(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, suffix := range managedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

const (
	controlMaxConns      = 20
	controlMaxIdleTime   = time.Minute
	branchMaxConns       = 5
	branchMaxIdleTime    = 10 * time.Minute
	branchMaxLifetime    = time.Hour
	branchConnectTimeout = 10
)

func controlPoolConfig(databaseURL string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = controlMaxConns
	cfg.MaxConnIdleTime = controlMaxIdleTime
	return cfg, nil
}

func branchPoolConfig(key PoolKey, password string) (*pgxpool.Config, error) {
	if key.Host == "" || key.Database == "" || key.User == "" {
		return nil, errors.New("branch connection requires host, database and user")
	}

	query := url.Values{}
	query.Set("connect_timeout", strconv.Itoa(branchConnectTimeout))
	if RequiresTLS(key.Host) {
		query.Set("sslmode", "require")
	} else {
		query.Set("sslmode", "disable")
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(key.User, password),
		Host:     net.JoinHostPort(key.Host, strconv.Itoa(key.Port)),
		Path:     "/" + key.Database,
		RawQuery: query.Encode(),
	}

	cfg, err := pgxpool.ParseConfig(dsn.String())
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = branchMaxConns
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = branchMaxIdleTime
	cfg.MaxConnLifetime = branchMaxLifetime
	return cfg, nil
}
