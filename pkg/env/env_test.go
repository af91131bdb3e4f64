package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	t.Setenv("CHAT_TEST_VALUE", "")
	assert.Equal(t, "fallback", Lookup("CHAT_TEST_VALUE", "fallback"))

	t.Setenv("CHAT_TEST_VALUE", "set")
	assert.Equal(t, "set", Lookup("CHAT_TEST_VALUE", "fallback"))
}

func TestSecret(t *testing.T) {
	t.Setenv("CHAT_TEST_SECRET", "from-env")
	t.Setenv("CHAT_TEST_SECRET_FILE", "")

	v, err := Secret("CHAT_TEST_SECRET", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	file := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(file, []byte("  from-file\n"), 0o600))
	t.Setenv("CHAT_TEST_SECRET_FILE", file)

	v, err = Secret("CHAT_TEST_SECRET", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)

	t.Setenv("CHAT_TEST_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))
	_, err = Secret("CHAT_TEST_SECRET", "fallback")
	assert.ErrorContains(t, err, "CHAT_TEST_SECRET_FILE")
}
