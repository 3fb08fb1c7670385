// Package journal keeps the reports of past runs in a bbolt file.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/balaji-balu/offsetup/internal/report"
)

const (
	runsBucket = "runs"
	metaBucket = "meta"
	latestKey  = "latest"
)

var ErrNotFound = errors.New("run not found")

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save stores r under its run ID and makes it the latest run.
func (s *Store) Save(r *report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(runsBucket)).Put([]byte(r.RunID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(latestKey), []byte(r.RunID))
	})
}

// Send makes the journal a report sink.
func (s *Store) Send(_ context.Context, r *report.Report) error { return s.Save(r) }

func (s *Store) Get(id string) (*report.Report, error) {
	var r *report.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		r = &report.Report{}
		return json.Unmarshal(v, r)
	})
	return r, err
}

func (s *Store) Latest() (*report.Report, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		id = string(tx.Bucket([]byte(metaBucket)).Get([]byte(latestKey)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}
	return s.Get(id)
}

// List returns every stored run, newest first.
func (s *Store) List() ([]*report.Report, error) {
	var runs []*report.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			r := &report.Report{}
			if err := json.Unmarshal(v, r); err != nil {
				return err
			}
			runs = append(runs, r)
			return nil
		})
	})
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, err
}
