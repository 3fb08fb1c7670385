package capability

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/fault"
)

// PortExposer makes a port reachable from outside the machine.
type PortExposer interface {
	Expose(ctx context.Context, protocol string, port int) error
}

// Declared only records exposed ports. It is used when no firewall is
// managed.
type Declared struct {
	Logger *zap.Logger

	mu    sync.Mutex
	ports []string
}

func (d *Declared) Expose(_ context.Context, protocol string, port int) error {
	d.mu.Lock()
	d.ports = append(d.ports, fmt.Sprintf("%d/%s", port, protocol))
	d.mu.Unlock()
	if d.Logger != nil {
		d.Logger.Info("port declared", zap.String("protocol", protocol), zap.Int("port", port))
	}
	return nil
}

func (d *Declared) Ports() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ports...)
}

// UFW opens ports with ufw.
type UFW struct {
	Runner Runner
}

func (u UFW) Expose(ctx context.Context, protocol string, port int) error {
	rule := fmt.Sprintf("%d/%s", port, protocol)
	if _, err := u.Runner.Run(ctx, "", "ufw", "allow", rule); err != nil {
		return classify(fault.ErrCommand, err, "ufw allow %s", rule)
	}
	return nil
}

// NewPortExposer returns the exposer for a ports.firewall setting.
func NewPortExposer(firewall string, r Runner, logger *zap.Logger) (PortExposer, error) {
	switch firewall {
	case "", "none":
		return &Declared{Logger: logger}, nil
	case "ufw":
		return UFW{Runner: r}, nil
	}
	return nil, fmt.Errorf("unknown firewall %q", firewall)
}
