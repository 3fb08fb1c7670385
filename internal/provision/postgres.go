package provision

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/fault"
)

// Postgres creates roles and databases on a PostgreSQL server. Both
// operations are no-ops when the object already exists.
type Postgres struct {
	drv    dialect.ExecQuerier
	logger *zap.Logger
}

func NewPostgres(drv dialect.ExecQuerier, logger *zap.Logger) *Postgres {
	return &Postgres{drv: drv, logger: logger}
}

// OpenPostgres connects to dsn, retrying while the server starts up.
func OpenPostgres(ctx context.Context, dsn string, attempts int, logger *zap.Logger) (*Postgres, *entsql.Driver, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		drv, err := entsql.Open(dialect.Postgres, dsn)
		if err == nil {
			if err = drv.DB().PingContext(ctx); err == nil {
				logger.Info("connected to postgres", zap.Int("attempt", i))
				return NewPostgres(drv, logger), drv, nil
			}
			drv.Close()
		}
		lastErr = err
		logger.Info("waiting for postgres", zap.Int("attempt", i), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(time.Duration(i) * time.Second):
		}
	}
	return nil, nil, fault.Wrap(fault.ErrCapabilityUnavailable, lastErr, "postgres")
}

func (p *Postgres) exists(ctx context.Context, query, name string) (bool, error) {
	var rows entsql.Rows
	if err := p.drv.Query(ctx, query, []any{name}, &rows); err != nil {
		return false, err
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}

func (p *Postgres) CreateUser(ctx context.Context, name, password string) error {
	found, err := p.exists(ctx, "SELECT 1 FROM pg_roles WHERE rolname = $1", name)
	if err != nil {
		return fault.Wrap(fault.ErrProvisioning, err, "lookup role %s", name)
	}
	if found {
		p.logger.Info("role exists", zap.String("user", name))
		return nil
	}
	stmt := fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD %s", pq.QuoteIdentifier(name), pq.QuoteLiteral(password))
	if err := p.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
		return fault.Wrap(fault.ErrProvisioning, err, "create role %s", name)
	}
	p.logger.Info("role created", zap.String("user", name))
	return nil
}

func (p *Postgres) CreateDatabase(ctx context.Context, name, owner string) error {
	found, err := p.exists(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", name)
	if err != nil {
		return fault.Wrap(fault.ErrProvisioning, err, "lookup database %s", name)
	}
	if found {
		p.logger.Info("database exists", zap.String("database", name))
		return nil
	}
	stmt := "CREATE DATABASE " + pq.QuoteIdentifier(name)
	if owner != "" {
		stmt += " OWNER " + pq.QuoteIdentifier(owner)
	}
	if err := p.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
		return fault.Wrap(fault.ErrProvisioning, err, "create database %s", name)
	}
	p.logger.Info("database created", zap.String("database", name), zap.String("owner", owner))
	return nil
}
