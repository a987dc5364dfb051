// Package datastore keeps the persistent state of one game server as a JSON
// document on disk.
//
// Keys are dotted paths into nested objects: "ports.query" names the
// "query" member of the "ports" object, and numeric segments index arrays.
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Common errors returned by data store operations
var (
	// ErrNotFound indicates the data store file does not exist
	ErrNotFound = errors.New("datastore: not found")

	// ErrExists indicates Create found an existing data store
	ErrExists = errors.New("datastore: already exists")

	// ErrLocked indicates another process holds the data store lock
	ErrLocked = errors.New("datastore: locked")

	// ErrPath indicates a key walks through a value that is not an object or array
	ErrPath = errors.New("datastore: invalid key path")
)

const (
	// FileMode is the permission used for data store files
	FileMode = 0o644

	// lockRetry is the polling interval while waiting for the lock
	lockRetry = 100 * time.Millisecond
)

// Store is an in-memory copy of one data store file. Changes are written
// back with Save. A Store is not safe for concurrent use; Lock serializes
// processes.
type Store struct {
	path string
	data map[string]any
}

// Open loads the data store at path
func Open(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading data store: %w", err)
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding data store %s: %w", path, err)
	}
	return &Store{path: path, data: data}, nil
}

// Create writes a new data store at path holding initial. It fails with
// ErrExists when the file is already there.
func Create(path string, initial map[string]any) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data store directory: %w", err)
	}
	if initial == nil {
		initial = map[string]any{}
	}
	s := &Store{path: path, data: initial}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Save writes the store atomically
func (s *Store) Save() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encoding data store: %w", err)
	}
	if err := renameio.WriteFile(s.path, raw, FileMode); err != nil {
		return fmt.Errorf("writing data store %s: %w", s.path, err)
	}
	return nil
}

// Get returns the value at key
func (s *Store) Get(key string) (any, bool) {
	var cur any = s.data
	for _, seg := range split(key) {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Has reports whether key is set
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// GetString returns the string at key, or def when it is absent or not a
// string
func (s *Store) GetString(key, def string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// GetInt returns the number at key truncated to an int, or def
func (s *Store) GetInt(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// GetBool returns the boolean at key, or def
func (s *Store) GetBool(key string, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// GetStrings returns the array of strings at key. A single string is
// returned as a one element slice.
func (s *Store) GetStrings(key string) []string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	switch vals := v.(type) {
	case string:
		return []string{vals}
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, x := range vals {
			if str, ok := x.(string); ok {
				out = append(out, str)
			} else {
				out = append(out, fmt.Sprint(x))
			}
		}
		return out
	}
	return nil
}

// Set stores value at key, creating intermediate objects
func (s *Store) Set(key string, value any) error {
	segs := split(key)
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty key", ErrPath)
	}
	var cur any = s.data
	for i, seg := range segs[:len(segs)-1] {
		next, ok := child(cur, seg)
		if !ok {
			m, isMap := cur.(map[string]any)
			if !isMap {
				return fmt.Errorf("%w: %s is not an object", ErrPath, strings.Join(segs[:i], "."))
			}
			next = map[string]any{}
			m[seg] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	switch c := cur.(type) {
	case map[string]any:
		c[last] = value
	case []any:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(c) {
			return fmt.Errorf("%w: %s is not a valid index", ErrPath, key)
		}
		c[i] = value
	default:
		return fmt.Errorf("%w: %s is not an object", ErrPath, strings.Join(segs[:len(segs)-1], "."))
	}
	return nil
}

// SetDefault stores value at key unless something is already there, and
// returns the value now stored
func (s *Store) SetDefault(key string, value any) any {
	if v, ok := s.Get(key); ok {
		return v
	}
	if err := s.Set(key, value); err != nil {
		return nil
	}
	return value
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	segs := split(key)
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty key", ErrPath)
	}
	parent := strings.Join(segs[:len(segs)-1], ".")
	cur, ok := s.Get(parent)
	if !ok {
		return nil
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s is not an object", ErrPath, parent)
	}
	delete(m, segs[len(segs)-1])
	return nil
}

// Keys returns the top-level keys in sorted order
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PrettyJSON renders the store indented with sorted keys
func (s *Store) PrettyJSON() (string, error) {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// YAML renders the store as YAML
func (s *Store) YAML() (string, error) {
	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Lock takes the cross-process lock for this store, retrying until ctx is
// done. The returned function releases it.
func (s *Store) Lock(ctx context.Context) (unlock func() error, err error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLocked, lockPath, err)
		}
		return nil, fmt.Errorf("acquiring lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	return lock.Unlock, nil
}

// ParseValue interprets a value typed on the command line. "[]" and "{}"
// create empty containers, JSON literals decode, and anything else is kept
// as a plain string.
func ParseValue(raw string) any {
	switch strings.TrimSpace(raw) {
	case "[]":
		return []any{}
	case "{}":
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func split(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, ".")
}

func child(cur any, seg string) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	}
	return nil, false
}
