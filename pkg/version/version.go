// Package version matches dotted-numeric versions against constraint
// expressions such as ">=7600", ">16.04" or ">=1.2, <2".
package version

import (
	"fmt"
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/balaji-balu/offsetup/internal/fault"
)

var numeric = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// Op is the comparison a Bound applies.
type Op int

const (
	Exact Op = iota
	AtLeast
	GreaterThan
	AtMost
	LessThan
)

var opSymbols = map[Op]string{
	Exact:       "=",
	AtLeast:     ">=",
	GreaterThan: ">",
	AtMost:      "<=",
	LessThan:    "<",
}

// String returns the operator as written in a constraint.
func (o Op) String() string { return opSymbols[o] }

// Bound is a single comparison against a version.
type Bound struct {
	Op      Op
	Version *goversion.Version
	raw     string
}

func (b Bound) String() string {
	if b.Op == Exact {
		return b.raw
	}
	return b.Op.String() + b.raw
}

func (b Bound) matches(v *goversion.Version) bool {
	c := v.Compare(b.Version)
	switch b.Op {
	case AtLeast:
		return c >= 0
	case GreaterThan:
		return c > 0
	case AtMost:
		return c <= 0
	case LessThan:
		return c < 0
	default:
		return c == 0
	}
}

// Constraint is a conjunction of bounds; a range is written as
// comma-separated bounds.
type Constraint []Bound

func (c Constraint) String() string {
	parts := make([]string, len(c))
	for i, b := range c {
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}

// Parse parses a dotted-numeric version. Missing trailing components
// compare as zero.
func Parse(s string) (*goversion.Version, error) {
	s = strings.TrimSpace(s)
	if !numeric.MatchString(s) {
		return nil, fault.New(fault.ErrInvalidVersion, "%q is not a dotted-numeric version", s)
	}
	v, err := goversion.NewVersion(s)
	if err != nil {
		return nil, fault.Wrap(fault.ErrInvalidVersion, err, "%q", s)
	}
	return v, nil
}

// ParseConstraint parses a constraint expression. A bare version means
// Exact.
func ParseConstraint(expr string) (Constraint, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fault.New(fault.ErrInvalidVersion, "empty constraint")
	}
	var c Constraint
	for _, part := range strings.Split(expr, ",") {
		b, err := parseBound(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", expr, err)
		}
		c = append(c, b)
	}
	return c, nil
}

func parseBound(s string) (Bound, error) {
	op := Exact
	switch {
	case strings.HasPrefix(s, ">="):
		op, s = AtLeast, s[2:]
	case strings.HasPrefix(s, "<="):
		op, s = AtMost, s[2:]
	case strings.HasPrefix(s, "=="):
		s = s[2:]
	case strings.HasPrefix(s, ">"):
		op, s = GreaterThan, s[1:]
	case strings.HasPrefix(s, "<"):
		op, s = LessThan, s[1:]
	case strings.HasPrefix(s, "="):
		s = s[1:]
	}
	s = strings.TrimSpace(s)
	v, err := Parse(s)
	if err != nil {
		return Bound{}, err
	}
	return Bound{Op: op, Version: v, raw: s}, nil
}

// Check reports whether candidate satisfies every bound of c.
func (c Constraint) Check(candidate string) (bool, error) {
	v, err := Parse(candidate)
	if err != nil {
		return false, err
	}
	for _, b := range c {
		if !b.matches(v) {
			return false, nil
		}
	}
	return true, nil
}

// Matches parses expr and checks candidate against it.
func Matches(expr, candidate string) (bool, error) {
	c, err := ParseConstraint(expr)
	if err != nil {
		return false, err
	}
	return c.Check(candidate)
}
