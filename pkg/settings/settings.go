// Package settings holds the user's preferences, persisted as plain JSON.
//
// A Settings value is loaded once and passed to whoever needs it. Set only
// changes memory; Save is the explicit checkpoint that writes the file.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/forest6511/pinvault/internal/fsutil"
)

// Known keys
const (
	KeyTheme            = "theme"
	KeyAutoSave         = "auto_save"
	KeyAutoSaveInterval = "auto_save_interval" // seconds
	KeyShowWelcome      = "show_welcome"
	KeyFontSize         = "font_size"
	KeyWindowGeometry   = "window_geometry"
	KeyBackupOnExit     = "backup_on_exit"
	KeySessionTimeout   = "session_timeout" // 0 = no timeout
	KeyShowNoteCount    = "show_note_count"
	KeyConfirmDelete    = "confirm_delete"
	KeyRecentFiles      = "recent_files"
)

// Defaults returns a fresh copy of the default preferences.
func Defaults() map[string]any {
	return map[string]any{
		KeyTheme:            "dark_red",
		KeyAutoSave:         true,
		KeyAutoSaveInterval: 30,
		KeyShowWelcome:      true,
		KeyFontSize:         14,
		KeyWindowGeometry:   nil,
		KeyBackupOnExit:     false,
		KeySessionTimeout:   0,
		KeyShowNoteCount:    true,
		KeyConfirmDelete:    true,
		KeyRecentFiles:      []any{},
	}
}

// Settings is a set of preferences bound to a file.
type Settings struct {
	path   string
	mu     sync.RWMutex
	values map[string]any
	dirty  bool
}

// Load reads path and overlays it on the defaults. A missing file or one
// that is not a JSON object yields the defaults; only I/O failures are
// returned as errors, together with usable defaults.
func Load(path string) (*Settings, error) {
	s := &Settings{path: path, values: Defaults()}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("settings: failed to read %s: %w", path, err)
	}

	var loaded map[string]any
	if err := json.Unmarshal(data, &loaded); err != nil || loaded == nil {
		return s, nil
	}
	for k, v := range loaded {
		s.values[k] = normalize(v)
	}
	return s, nil
}

// normalize turns whole JSON numbers into ints so Int and equality with
// the defaults behave.
func normalize(v any) any {
	if f, ok := v.(float64); ok && f == float64(int(f)) {
		return int(f)
	}
	return v
}

// Path returns the settings file path.
func (s *Settings) Path() string {
	return s.path
}

// Get returns the value for key, falling back to its default.
func (s *Settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, true
	}
	v, ok := Defaults()[key]
	return v, ok
}

// Bool returns key as a bool, or its default if unset or of another type.
func (s *Settings) Bool(key string) bool {
	v, _ := s.Get(key)
	if b, ok := v.(bool); ok {
		return b
	}
	b, _ := Defaults()[key].(bool)
	return b
}

// Int returns key as an int, or its default if unset or of another type.
func (s *Settings) Int(key string) int {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	n, _ := Defaults()[key].(int)
	return n
}

// String returns key as a string, or its default if unset or of another type.
func (s *Settings) String(key string) string {
	v, _ := s.Get(key)
	if str, ok := v.(string); ok {
		return str
	}
	str, _ := Defaults()[key].(string)
	return str
}

// Set changes a value in memory. Call Save to persist it.
func (s *Settings) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = normalize(value)
	s.dirty = true
}

// Reset restores every value to its default. Call Save to persist it.
func (s *Settings) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = Defaults()
	s.dirty = true
}

// Dirty reports whether there are unsaved changes.
func (s *Settings) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Keys returns every key that has a value, sorted.
func (s *Settings) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes all values to the settings file, indented like the files
// the desktop program writes.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: failed to encode: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, fsutil.FileMode); err != nil {
		return fmt.Errorf("settings: failed to save: %w", err)
	}
	s.dirty = false
	return nil
}

// Parse converts raw command-line text into a value for key, using the
// type of the key's default. Unknown keys accept JSON, or plain text.
func Parse(key, raw string) (any, error) {
	switch Defaults()[key].(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("settings: %s expects true or false", key)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("settings: %s expects an integer", key)
		}
		return n, nil
	case string:
		return raw, nil
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw, nil
	}
	return normalize(v), nil
}
