// Package provision derives the post-install steps of an application and
// creates the users and databases they ask for.
package provision

import (
	"context"
	"strings"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/plan"
	"github.com/balaji-balu/offsetup/pkg/manifest"
)

// Provisioner creates application users and databases.
type Provisioner interface {
	CreateUser(ctx context.Context, name, password string) error
	CreateDatabase(ctx context.Context, name, owner string) error
}

// Lookuper reads an environment variable.
type Lookuper interface {
	Lookup(key string) (string, bool)
}

// Derive returns the env binding, user and database steps of app, in that
// order.
func Derive(app manifest.Application) []plan.Step {
	var steps []plan.Step
	add := func(id string, a plan.Action) {
		steps = append(steps, plan.Step{
			ID:           "app/" + app.Name + "/" + id,
			Phase:        plan.PhaseApplications,
			Owner:        app.Name,
			FailSilently: app.FailSilently,
			Action:       a,
		})
	}
	if app.Env != "" {
		add("env/"+app.Env, plan.EnvBind{
			Name:   app.Env,
			Source: plan.ValueSource{App: app.Name, Key: app.Env},
		})
	}
	for _, u := range app.Users {
		add("user/"+u.Name, plan.UserProvision{App: app.Name, Name: u.Name, Credential: u.Password})
	}
	for _, d := range app.Databases {
		add("database/"+d.Name, plan.DatabaseProvision{App: app.Name, Name: d.Name, Owner: d.Owner})
	}
	return steps
}

// OrderDatabases moves every database step whose owner is created by a
// later user step to directly after that user step. Other steps keep their
// relative order.
func OrderDatabases(steps []plan.Step) []plan.Step {
	out := make([]plan.Step, 0, len(steps))
	waiting := map[string][]plan.Step{}
	for i, s := range steps {
		if db, ok := s.Action.(plan.DatabaseProvision); ok && db.Owner != "" && userAfter(steps[i+1:], db.Owner) {
			waiting[db.Owner] = append(waiting[db.Owner], s)
			continue
		}
		out = append(out, s)
		if u, ok := s.Action.(plan.UserProvision); ok {
			out = append(out, waiting[u.Name]...)
			delete(waiting, u.Name)
		}
	}
	return out
}

func userAfter(steps []plan.Step, name string) bool {
	for _, s := range steps {
		if u, ok := s.Action.(plan.UserProvision); ok && u.Name == name {
			return true
		}
	}
	return false
}

// ResolveCredential returns the secret for a credential. Values starting
// with "$" name an environment variable; "$$" escapes a literal dollar.
func ResolveCredential(cred string, env Lookuper) (string, error) {
	if !strings.HasPrefix(cred, "$") {
		return cred, nil
	}
	if strings.HasPrefix(cred, "$$") {
		return cred[1:], nil
	}
	name := strings.TrimSuffix(strings.TrimPrefix(cred[1:], "{"), "}")
	v, ok := env.Lookup(name)
	if !ok {
		return "", fault.New(fault.ErrProvisioning, "credential variable %s is not set", name)
	}
	return v, nil
}

// Unavailable is used when no database connection is configured.
type Unavailable struct{}

func (Unavailable) CreateUser(context.Context, string, string) error {
	return fault.New(fault.ErrCapabilityUnavailable, "no database connection configured (provision.dsn)")
}

func (Unavailable) CreateDatabase(context.Context, string, string) error {
	return fault.New(fault.ErrCapabilityUnavailable, "no database connection configured (provision.dsn)")
}
