// Package memdb is an in-memory store.StateDB, used in tests and as the
// default when no persistent backend is configured.
package memdb

import (
	"sync"

	"github.com/sonic-net/fgnhgctl/internal/store"
)

type DB struct {
	mu   sync.Mutex
	data map[string]map[string]map[string]string // table -> key -> field -> value
}

var _ store.StateDB = (*DB)(nil)

func New() *DB {
	return &DB{data: make(map[string]map[string]map[string]string)}
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
	return nil
}

func (d *DB) DelField(table, key, field string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.data[table][key]
	if !ok {
		return nil
	}
	delete(row, field)
	return nil
}

func (d *DB) DelRow(table, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.data[table]; ok {
		delete(t, key)
	}
	return nil
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
