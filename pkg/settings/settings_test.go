package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	assert.Equal(t, "dark_red", s.String(KeyTheme))
	assert.True(t, s.Bool(KeyAutoSave))
	assert.Equal(t, 30, s.Int(KeyAutoSaveInterval))
	assert.Equal(t, 14, s.Int(KeyFontSize))
	assert.False(t, s.Bool(KeyBackupOnExit))
	assert.Equal(t, 0, s.Int(KeySessionTimeout))
	assert.True(t, s.Bool(KeyConfirmDelete))

	geo, ok := s.Get(KeyWindowGeometry)
	assert.True(t, ok)
	assert.Nil(t, geo)
	assert.False(t, s.Dirty())
}

func TestLoadMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme": "cyber_blue", "font_size": 18, "extra": "kept"}`), 0600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cyber_blue", s.String(KeyTheme))
	assert.Equal(t, 18, s.Int(KeyFontSize))
	assert.True(t, s.Bool(KeyShowWelcome), "missing keys fall back to defaults")

	v, ok := s.Get("extra")
	assert.True(t, ok)
	assert.Equal(t, "kept", v)
}

func TestLoadUnparsableGivesDefaults(t *testing.T) {
	for name, content := range map[string]string{
		"garbage": "{not json",
		"array":   `["theme"]`,
		"null":    "null",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))
			s, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "dark_red", s.String(KeyTheme))
		})
	}
}

func TestWrongTypeFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auto_save": "yes", "font_size": "big"}`), 0600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.Bool(KeyAutoSave))
	assert.Equal(t, 14, s.Int(KeyFontSize))
}

func TestSetIsInMemoryUntilSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "settings.json")
	s, err := Load(path)
	require.NoError(t, err)

	s.Set(KeyConfirmDelete, false)
	assert.False(t, s.Bool(KeyConfirmDelete))
	assert.True(t, s.Dirty())
	assert.NoFileExists(t, path)

	require.NoError(t, s.Save())
	assert.False(t, s.Dirty())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, reloaded.Bool(KeyConfirmDelete))

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, len(Defaults()))
}

func TestReset(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	s.Set(KeyTheme, "matrix")
	s.Set("custom", 1)

	s.Reset()
	assert.Equal(t, "dark_red", s.String(KeyTheme))
	_, ok := s.Get("custom")
	assert.False(t, ok)
	assert.Equal(t, len(Defaults()), len(s.Keys()))
}

func TestDefaultsAreIndependentCopies(t *testing.T) {
	d := Defaults()
	d[KeyTheme] = "changed"
	assert.Equal(t, "dark_red", Defaults()[KeyTheme])
}

func TestParse(t *testing.T) {
	tests := []struct {
		key, raw string
		want     any
		wantErr  bool
	}{
		{KeyAutoSave, "false", false, false},
		{KeyAutoSave, "maybe", nil, true},
		{KeyFontSize, "16", 16, false},
		{KeyFontSize, "large", nil, true},
		{KeyTheme, "cyber_blue", "cyber_blue", false},
		{KeyWindowGeometry, "null", nil, false},
		{KeyRecentFiles, `["a.enc"]`, []any{"a.enc"}, false},
		{"custom", "42", 42, false},
		{"custom", "hello world", "hello world", false},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.raw, func(t *testing.T) {
			got, err := Parse(tt.key, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
