package toolbox

import (
	"testing"

	"github.com/martinemde/taskrouter/agentloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaults(t *testing.T) {
	reg := agentloop.NewToolRegistry()
	names, err := RegisterDefaults(reg, Config{WorkDir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, []string{FileManagerName, TerminalName, WebSearchName, WebFetchName}, names)
	assert.Equal(t, []string{"file_manager", "terminal", "web_fetch", "web_search"}, reg.Names())

	for _, d := range reg.List() {
		assert.NotEmpty(t, d.Description, d.Name)
		assert.Equal(t, "object", d.Parameters["type"], d.Name)
	}
}

func TestRegisterDefaultsDisabled(t *testing.T) {
	reg := agentloop.NewToolRegistry()
	names, err := RegisterDefaults(reg, Config{WorkDir: t.TempDir(), Disabled: []string{WebSearchName, TerminalName}})
	require.NoError(t, err)

	assert.Equal(t, []string{FileManagerName, WebFetchName}, names)
	assert.False(t, reg.Has(TerminalName))
}
