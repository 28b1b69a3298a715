package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScriptIsIdempotentDDL(t *testing.T) {
	s, err := DefaultScript()
	require.NoError(t, err)
	require.Positive(t, s.Len())

	for _, stmt := range s.Statements() {
		assert.True(t, strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS"), stmt)
	}

	again, err := DefaultScript()
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestStatementsReturnsCopy(t *testing.T) {
	s, err := ParseScript("inline", []byte("SELECT 1; SELECT 2;"))
	require.NoError(t, err)

	stmts := s.Statements()
	stmts[0] = "DROP TABLE patients"
	assert.Equal(t, "SELECT 1", s.Statements()[0])
}

func TestParseScriptRejectsEmpty(t *testing.T) {
	_, err := ParseScript("empty", []byte("-- nothing\n;;"))
	assert.ErrorIs(t, err, ErrEmptyScript)
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE IF NOT EXISTS x (id INT);"), 0o600))

	s, err := ResolveScript(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Name())
	assert.Equal(t, 1, s.Len())

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.sql"))
	assert.Error(t, err)

	def, err := ResolveScript("  ")
	require.NoError(t, err)
	assert.Contains(t, def.Name(), "embedded:")
}

func TestResolveVendorScripts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE x (id NUMBER)"), 0o600))

	scripts, err := ResolveVendorScripts(map[string]string{"oracle": path})
	require.NoError(t, err)
	require.Contains(t, scripts, "oracle")
	assert.Equal(t, 1, scripts["oracle"].Len())

	none, err := ResolveVendorScripts(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = ResolveVendorScripts(map[string]string{"oracle": filepath.Join(t.TempDir(), "missing.sql")})
	assert.ErrorContains(t, err, "oracle")
}
