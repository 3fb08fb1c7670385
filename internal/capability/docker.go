package capability

import (
	"context"
	"strings"

	"github.com/balaji-balu/offsetup/internal/fault"
	"github.com/balaji-balu/offsetup/internal/plan"
)

// ContainerRuntime runs an application as a container and returns the
// address it listens on, or "" if it publishes nothing.
type ContainerRuntime interface {
	Run(ctx context.Context, app plan.ApplicationInstall) (string, error)
}

// Docker drives the docker CLI.
type Docker struct {
	Runner Runner
}

// ContainerName is the name offsetup gives an application's container.
func ContainerName(app string) string { return "offsetup-" + app }

func image(app plan.ApplicationInstall) string {
	if app.Version == "" || strings.ContainsAny(app.Version, "<>=,") {
		return app.Pkg
	}
	return app.Pkg + ":" + app.Version
}

func (d Docker) Run(ctx context.Context, app plan.ApplicationInstall) (string, error) {
	if _, err := d.Runner.Run(ctx, "", "docker", "version", "--format", "{{.Server.Version}}"); err != nil {
		return "", classify(fault.ErrCapabilityUnavailable, err, "docker daemon")
	}

	name := ContainerName(app.App)
	out, err := d.Runner.Run(ctx, "", "docker", "ps", "-a", "--filter", "name=^"+name+"$", "--format", "{{.State}}")
	if err != nil {
		return "", classify(fault.ErrPackageManager, err, "docker ps %s", name)
	}
	switch state := strings.TrimSpace(string(out)); state {
	case "running":
	case "":
		if _, err := d.Runner.Run(ctx, "", "docker", "run", "-d", "--name", name, "--restart", "unless-stopped", "-P", image(app)); err != nil {
			return "", classify(fault.ErrPackageManager, err, "docker run %s", image(app))
		}
	default:
		if _, err := d.Runner.Run(ctx, "", "docker", "start", name); err != nil {
			return "", classify(fault.ErrPackageManager, err, "docker start %s", name)
		}
	}

	out, err = d.Runner.Run(ctx, "", "docker", "port", name)
	if err != nil {
		return "", nil
	}
	return parsePort(string(out)), nil
}

// parsePort reads the first mapping of `docker port`, such as
// "6379/tcp -> 0.0.0.0:32768", as a host address.
func parsePort(out string) string {
	for _, line := range strings.Split(out, "\n") {
		_, addr, ok := strings.Cut(line, "->")
		if !ok {
			continue
		}
		addr = strings.TrimSpace(addr)
		addr = strings.Replace(addr, "0.0.0.0:", "localhost:", 1)
		return strings.Replace(addr, "[::]:", "localhost:", 1)
	}
	return ""
}
