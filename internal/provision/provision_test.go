package provision

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/plan"
	"github.com/balaji-balu/offsetup/pkg/manifest"
)

func ids(steps []plan.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID
	}
	return out
}

func TestDerive(t *testing.T) {
	app := manifest.Application{
		Name:         "postgres",
		Env:          "DATABASE_URL",
		FailSilently: true,
		Users:        []manifest.User{{Name: "app", Password: "$APP_PASSWORD"}},
		Databases:    []manifest.Database{{Name: "appdb", Owner: "app"}},
	}
	steps := Derive(app)
	assert.Equal(t, []string{
		"app/postgres/env/DATABASE_URL",
		"app/postgres/user/app",
		"app/postgres/database/appdb",
	}, ids(steps))
	for _, s := range steps {
		assert.Equal(t, "postgres", s.Owner)
		assert.True(t, s.FailSilently)
		assert.Equal(t, plan.PhaseApplications, s.Phase)
	}
	bind := steps[0].Action.(plan.EnvBind)
	assert.Equal(t, plan.ValueSource{App: "postgres", Key: "DATABASE_URL"}, bind.Source)

	assert.Empty(t, Derive(manifest.Application{Name: "bare"}))
}

func TestOrderDatabasesAfterLaterOwner(t *testing.T) {
	steps := append(
		Derive(manifest.Application{Name: "api", Databases: []manifest.Database{{Name: "apidb", Owner: "svc"}, {Name: "other", Owner: "nobody"}}}),
		Derive(manifest.Application{Name: "auth", Users: []manifest.User{{Name: "svc"}}})...,
	)
	assert.Equal(t, []string{
		"app/api/database/other",
		"app/auth/user/svc",
		"app/api/database/apidb",
	}, ids(OrderDatabases(steps)))
}

type mapEnv map[string]string

func (m mapEnv) Lookup(k string) (string, bool) {
	v, ok := m[k]
	return v, ok
}

func TestResolveCredential(t *testing.T) {
	env := mapEnv{"APP_PASSWORD": "s3cret"}

	v, err := ResolveCredential("$APP_PASSWORD", env)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	v, err = ResolveCredential("${APP_PASSWORD}", env)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	v, err = ResolveCredential("literal", env)
	require.NoError(t, err)
	assert.Equal(t, "literal", v)

	v, err = ResolveCredential("$$dollar", env)
	require.NoError(t, err)
	assert.Equal(t, "$dollar", v)

	_, err = ResolveCredential("$MISSING", env)
	assert.ErrorIs(t, err, fault.ErrProvisioning)
}

// fakeDB records statements and answers existence queries from a set.
type fakeDB struct {
	existing map[string]bool
	execs    []string
	execErr  error
}

func (f *fakeDB) Exec(ctx context.Context, query string, args, v any) error {
	f.execs = append(f.execs, query)
	return f.execErr
}

func (f *fakeDB) Query(ctx context.Context, query string, args, v any) error {
	name := args.([]any)[0].(string)
	rows := v.(*entsql.Rows)
	rows.ColumnScanner = &fakeRows{left: f.existing[name]}
	return nil
}

type fakeRows struct{ left bool }

func (r *fakeRows) Close() error                           { return nil }
func (r *fakeRows) ColumnTypes() ([]*sql.ColumnType, error) { return nil, nil }
func (r *fakeRows) Columns() ([]string, error)             { return []string{"?column?"}, nil }
func (r *fakeRows) Err() error                             { return nil }
func (r *fakeRows) NextResultSet() bool                    { return false }
func (r *fakeRows) Scan(dest ...any) error                 { return nil }
func (r *fakeRows) Next() bool {
	ok := r.left
	r.left = false
	return ok
}

func TestPostgresIsIdempotent(t *testing.T) {
	db := &fakeDB{existing: map[string]bool{"app": true}}
	p := NewPostgres(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, p.CreateUser(ctx, "app", "x"))
	assert.Empty(t, db.execs)

	require.NoError(t, p.CreateUser(ctx, "new", "it's"))
	require.NoError(t, p.CreateDatabase(ctx, "appdb", "new"))
	assert.Equal(t, []string{
		`CREATE ROLE "new" WITH LOGIN PASSWORD 'it''s'`,
		`CREATE DATABASE "appdb" OWNER "new"`,
	}, db.execs)
}

func TestPostgresFailureIsProvisioningError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("permission denied")}
	err := NewPostgres(db, zap.NewNop()).CreateDatabase(context.Background(), "appdb", "")
	assert.ErrorIs(t, err, fault.ErrProvisioning)
	assert.Contains(t, err.Error(), "permission denied")
}
