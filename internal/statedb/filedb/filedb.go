// Package filedb is a file-backed store.StateDB, used when warm-restart
// recovery must survive process restarts on a single switch. It persists
// the whole table set as one JSON document and replaces it with an
// atomic rename on every write, grounded on the local-then-backend
// load/flush pattern in modules/backendscheduler/cache.go
// (flushWorkCacheToBackend / loadWorkCacheFromBackend).
package filedb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sonic-net/fgnhgctl/internal/store"
)

// DB is a file-backed StateDB. Every mutating call rewrites the entire
// file; this is deliberately simple (no WAL, no incremental appends)
// because the FG-ECMP route table is small — one row per prefix with at
// most one field per bucket, and groups per switch are bounded by the ASIC
// group ceiling (SPEC_FULL.md §6).
type DB struct {
	mu   sync.Mutex
	path string
	data map[string]map[string]map[string]string
}

var _ store.StateDB = (*DB)(nil)

// Open loads path if it exists, or starts empty.
func Open(path string) (*DB, error) {
	d := &DB{path: path, data: make(map[string]map[string]map[string]string)}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("filedb: reading %s: %w", path, err)
	}
	if len(b) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(b, &d.data); err != nil {
		return nil, fmt.Errorf("filedb: decoding %s: %w", path, err)
	}
	return d, nil
}

func (d *DB) flushLocked() error {
	b, err := json.Marshal(d.data)
	if err != nil {
		return fmt.Errorf("filedb: encoding: %w", err)
	}
	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, ".filedb-*.tmp")
	if err != nil {
		return fmt.Errorf("filedb: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("filedb: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filedb: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filedb: renaming temp file: %w", err)
	}
	return nil
}

func (d *DB) SetField(table, key, field, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.data[table]
	if !ok {
		t = make(map[string]map[string]string)
		d.data[table] = t
	}
	row, ok := t[key]
	if !ok {
		row = make(map[string]string)
		t[key] = row
	}
	row[field] = value
	return d.flushLocked()
}

func (d *DB) DelField(table, key, field string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.data[table][key]
	if !ok {
		return nil
	}
	delete(row, field)
	return d.flushLocked()
}

func (d *DB) DelRow(table, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.data[table]
	if !ok {
		return nil
	}
	if _, ok := t[key]; !ok {
		return nil
	}
	delete(t, key)
	return d.flushLocked()
}

func (d *DB) Row(table, key string) (map[string]string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.data[table][key]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, true, nil
}

func (d *DB) Keys(table string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.data[table]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	return out, nil
}
