package capability

import (
	"errors"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Env reads and binds environment variables.
type Env interface {
	Lookup(key string) (string, bool)
	Set(key, value string) error
}

// ProcessEnv is the process environment. When File is set every binding
// is also written there so later shells can source it.
type ProcessEnv struct {
	File string
	mu   sync.Mutex
}

func (p *ProcessEnv) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (p *ProcessEnv) Set(key, value string) error {
	if err := os.Setenv(key, value); err != nil {
		return err
	}
	if p.File == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	vars, err := godotenv.Read(p.File)
	if errors.Is(err, os.ErrNotExist) {
		vars = map[string]string{}
	} else if err != nil {
		return err
	}
	vars[key] = value
	return godotenv.Write(vars, p.File)
}

// MapEnv is an in-memory Env.
type MapEnv map[string]string

func (m MapEnv) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MapEnv) Set(key, value string) error {
	m[key] = value
	return nil
}
