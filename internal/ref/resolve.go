// Package ref expands {"$ref": "#/json/pointer"} objects in a YAML document
// into copies of the nodes they point at.
package ref

import (
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/offsetup/internal/fault"
)

const (
	Key             = "$ref"
	DefaultMaxDepth = 32
)

type Resolver struct {
	// MaxDepth bounds how many references may be followed in one chain.
	MaxDepth int

	doc *yaml.Node
}

// Resolve expands every reference in root with the default depth bound.
func Resolve(root *yaml.Node) (*yaml.Node, error) {
	return (&Resolver{MaxDepth: DefaultMaxDepth}).Resolve(root)
}

// Resolve returns a new tree with every reference replaced by a deep copy of
// its target. root is never modified; on error nothing is returned.
func (r *Resolver) Resolve(root *yaml.Node) (*yaml.Node, error) {
	if root == nil {
		return nil, nil
	}
	if r.MaxDepth <= 0 {
		r.MaxDepth = DefaultMaxDepth
	}
	r.doc = root
	defer func() { r.doc = nil }()
	return r.expand(root, nil)
}

func (r *Resolver) expand(n *yaml.Node, chain []string) (*yaml.Node, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		return r.expand(n.Alias, chain)
	}
	if ptr, ok := Pointer(n); ok {
		for _, p := range chain {
			if p == ptr {
				return nil, fault.New(fault.ErrCyclicReference, "%s", strings.Join(append(chain, ptr), " -> "))
			}
		}
		if len(chain) >= r.MaxDepth {
			return nil, fault.New(fault.ErrCyclicReference, "reference chain deeper than %d at %s", r.MaxDepth, ptr)
		}
		target, err := r.lookup(ptr, 0)
		if err != nil {
			return nil, err
		}
		return r.expand(target, append(chain, ptr))
	}

	out := *n
	out.Anchor = ""
	if len(n.Content) == 0 {
		out.Content = nil
		return &out, nil
	}
	out.Content = make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		if n.Kind == yaml.MappingNode && i%2 == 0 {
			k := *c
			k.Anchor = ""
			out.Content[i] = &k
			continue
		}
		x, err := r.expand(c, chain)
		if err != nil {
			return nil, err
		}
		out.Content[i] = x
	}
	return &out, nil
}

// lookup walks ptr from the document root. References met on the way are
// followed, counted against the depth bound.
func (r *Resolver) lookup(ptr string, hops int) (*yaml.Node, error) {
	if hops > r.MaxDepth {
		return nil, fault.New(fault.ErrCyclicReference, "reference chain deeper than %d at %s", r.MaxDepth, ptr)
	}
	tokens, err := split(ptr)
	if err != nil {
		return nil, err
	}
	cur := r.doc
	for i := 0; ; i++ {
		for {
			if cur.Kind == yaml.DocumentNode && len(cur.Content) > 0 {
				cur = cur.Content[0]
				continue
			}
			if cur.Kind == yaml.AliasNode && cur.Alias != nil {
				cur = cur.Alias
				continue
			}
			if inner, ok := Pointer(cur); ok && i < len(tokens) {
				cur, err = r.lookup(inner, hops+1)
				if err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if i == len(tokens) {
			return cur, nil
		}
		next := child(cur, tokens[i])
		if next == nil {
			return nil, fault.New(fault.ErrUnresolvedReference, "%s: no %q under /%s", ptr, tokens[i], strings.Join(tokens[:i], "/"))
		}
		cur = next
	}
}

func child(n *yaml.Node, token string) *yaml.Node {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == token {
				return n.Content[i+1]
			}
		}
	case yaml.SequenceNode:
		idx, err := strconv.Atoi(token)
		if err != nil || idx < 0 || idx >= len(n.Content) {
			return nil
		}
		return n.Content[idx]
	}
	return nil
}

// split turns "#/a/b~1c" into ["a", "b/c"].
func split(ptr string) ([]string, error) {
	if ptr == "#" {
		return nil, nil
	}
	if !strings.HasPrefix(ptr, "#/") {
		return nil, fault.New(fault.ErrUnresolvedReference, "%q is not a local pointer", ptr)
	}
	raw := strings.Split(ptr[2:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		if u, err := url.PathUnescape(t); err == nil {
			t = u
		}
		t = strings.ReplaceAll(t, "~1", "/")
		tokens[i] = strings.ReplaceAll(t, "~0", "~")
	}
	return tokens, nil
}

// Pointer reports whether n is a reference object and returns its pointer.
func Pointer(n *yaml.Node) (string, bool) {
	if n == nil || n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", false
	}
	k, v := n.Content[0], n.Content[1]
	if k.Kind != yaml.ScalarNode || k.Value != Key || v.Kind != yaml.ScalarNode {
		return "", false
	}
	return v.Value, true
}
