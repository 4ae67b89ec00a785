// Package datasource opens and owns the database pools tasks run against.
package datasource

import (
	"context"
	"database/sql"
	"os"
	"sort"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
	"github.com/wesleyorama2/dbping/pkg/interpolate"
)

// Config describes one database pool.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenFunc opens a pool. It is sql.Open outside of tests.
type OpenFunc func(driver, dsn string) (*sql.DB, error)

// Registry keeps one *sql.DB per datasource id. Pools are opened lazily.
type Registry struct {
	configs map[string]Config
	open    OpenFunc
	env     interpolate.LookupFunc

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewRegistry creates a registry over configs.
func NewRegistry(configs map[string]Config) *Registry {
	return &Registry{
		configs: configs,
		open:    sql.Open,
		env:     os.LookupEnv,
		dbs:     make(map[string]*sql.DB),
	}
}

// WithOpen replaces the function used to open pools.
func (r *Registry) WithOpen(open OpenFunc) *Registry {
	r.open = open
	return r
}

// WithEnv replaces the environment lookup used to expand DSNs.
func (r *Registry) WithEnv(env interpolate.LookupFunc) *Registry {
	r.env = env
	return r
}

// IDs returns the configured datasource ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DB returns the pool of datasource id, opening it on first use.
func (r *Registry) DB(id string) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.dbs[id]; ok {
		return db, nil
	}
	cfg, ok := r.configs[id]
	if !ok {
		return nil, pingerr.Newf(pingerr.ErrConfiguration, "unknown datasource %q", id)
	}

	db, err := r.open(cfg.Driver, interpolate.ExpandFunc(cfg.DSN, r.env))
	if err != nil {
		return nil, pingerr.Wrapf(pingerr.ErrConnection, err, "opening datasource %s", id)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	r.dbs[id] = db
	return db, nil
}

// Provider returns a connection provider for datasource id.
func (r *Registry) Provider(id string) (execution.ConnProvider, error) {
	db, err := r.DB(id)
	if err != nil {
		return nil, err
	}
	return Pool{DB: db}, nil
}

// Ping checks that datasource id accepts connections.
func (r *Registry) Ping(ctx context.Context, id string) error {
	db, err := r.DB(id)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return pingerr.Wrapf(pingerr.ErrConnection, err, "pinging datasource %s", id)
	}
	return nil
}

// Close closes every opened pool.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	for id, db := range r.dbs {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, pingerr.Wrapf(pingerr.ErrConnection, err, "closing datasource %s", id))
		}
		delete(r.dbs, id)
	}
	return result.ErrorOrNil()
}

// Pool adapts a *sql.DB to execution.ConnProvider.
type Pool struct {
	DB *sql.DB
}

// Conn implements execution.ConnProvider.
func (p Pool) Conn(ctx context.Context) (*sql.Conn, error) {
	return p.DB.Conn(ctx)
}
