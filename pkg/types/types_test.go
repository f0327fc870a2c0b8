package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessSetDeduplicates(t *testing.T) {
	set := NewProcessSet(3, 1, 3, 2)
	assert.Equal(t, 3, set.Len())
	assert.True(t, set.Has(1))
	assert.False(t, set.Has(4))
	assert.Equal(t, []ProcessID{1, 2, 3}, set.Sorted())
}

func TestParseBrowserKind(t *testing.T) {
	kind, err := ParseBrowserKind(" Chromium ")
	require.NoError(t, err)
	assert.Equal(t, Chromium, kind)

	kind, err = ParseBrowserKind("firefox")
	require.NoError(t, err)
	assert.Equal(t, Firefox, kind)

	_, err = ParseBrowserKind("netscape")
	require.Error(t, err)
}

func TestTrialConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     TrialConfig
		wantErr bool
	}{
		{"ok", TrialConfig{Browser: Chromium, Tabs: 1}, false},
		{"zeroTabs", TrialConfig{Browser: Chromium, Tabs: 0}, true},
		{"negativeTabs", TrialConfig{Browser: Firefox, Tabs: -2}, true},
		{"unknownBrowser", TrialConfig{Browser: "lynx", Tabs: 3}, true},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.wantErr {
			assert.Error(t, err, tc.name)
		} else {
			assert.NoError(t, err, tc.name)
		}
	}
	assert.Equal(t, "firefox/5", TrialConfig{Browser: Firefox, Tabs: 5}.String())
}
