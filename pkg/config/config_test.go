package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/tabmem/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []int{1, 5, 10, 20}, cfg.Tabs)
	assert.Equal(t, 5*time.Second, cfg.BaselineSettle)
	assert.Equal(t, 8*time.Second, cfg.StabilizeSettle)
	assert.Equal(t, NavigationAbort, cfg.NavigationPolicy)

	kinds, err := cfg.BrowserKinds()
	require.NoError(t, err)
	assert.Equal(t, []types.BrowserKind{types.Chromium, types.Firefox}, kinds)
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tabmem.yaml", []byte(`
browsers: [firefox]
tabs: [2, 4]
baseline_settle: 250ms
navigation_policy: skip
firefox_bin: /opt/firefox/firefox
`), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(fs, "/tabmem.yaml", &cfg))
	assert.Equal(t, []string{"firefox"}, cfg.Browsers)
	assert.Equal(t, []int{2, 4}, cfg.Tabs)
	assert.Equal(t, 250*time.Millisecond, cfg.BaselineSettle)
	assert.Equal(t, NavigationSkip, cfg.NavigationPolicy)
	assert.Equal(t, "/opt/firefox/firefox", cfg.Binary(types.Firefox))
	assert.Empty(t, cfg.Binary(types.Chromium))
	// untouched keys keep their defaults
	assert.Equal(t, 8*time.Second, cfg.StabilizeSettle)
	assert.Len(t, cfg.URLs, 4)
}

func TestLoadFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("tabz: [1]\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/empty.yaml", nil, 0o644))

	cfg := Default()
	assert.Error(t, LoadFile(fs, "/bad.yaml", &cfg))
	assert.Error(t, LoadFile(fs, "/missing.yaml", &cfg))
	assert.NoError(t, LoadFile(fs, "/empty.yaml", &cfg))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TABMEM_TABS":       "3,6",
		"TABMEM_TAB_DELAY":  "0s",
		"TABMEM_HEADED":     "true",
		"TABMEM_OUTPUT_DIR": "/tmp/out",
	}
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, []int{3, 6}, cfg.Tabs)
	assert.Equal(t, time.Duration(0), cfg.TabDelay)
	assert.True(t, cfg.Headed)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, []string{"chromium", "firefox"}, cfg.Browsers)
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, func(k string) (string, bool) {
		if k == "TABMEM_TABS" {
			return "one", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no browsers", func(c *Config) { c.Browsers = nil }},
		{"unknown browser", func(c *Config) { c.Browsers = []string{"lynx"} }},
		{"no tabs", func(c *Config) { c.Tabs = nil }},
		{"zero tabs", func(c *Config) { c.Tabs = []int{1, 0} }},
		{"no urls", func(c *Config) { c.URLs = nil }},
		{"negative delay", func(c *Config) { c.TabDelay = -time.Second }},
		{"bad policy", func(c *Config) { c.NavigationPolicy = "retry" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyFlagsOnlyCopiesChangedFlags(t *testing.T) {
	dst := Default()
	dst.Tabs = []int{7}
	dst.OutputDir = "/from/file"

	src := Default()
	fs := Flags(&src)
	require.NoError(t, fs.Parse([]string{"--browsers", "firefox", "--stabilize-settle", "2s", "--navigation-policy", "skip"}))
	ApplyFlags(fs, src, &dst)

	assert.Equal(t, []string{"firefox"}, dst.Browsers)
	assert.Equal(t, 2*time.Second, dst.StabilizeSettle)
	assert.Equal(t, NavigationSkip, dst.NavigationPolicy)
	assert.Equal(t, []int{7}, dst.Tabs)
	assert.Equal(t, "/from/file", dst.OutputDir)
}
