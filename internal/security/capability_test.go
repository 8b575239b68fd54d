package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandAllowlist(t *testing.T) {
	c := NewCapabilityChecker(nil, nil, []string{"ls", "cat"})

	assert.True(t, c.CheckCommand("ls").Allowed)
	assert.True(t, c.CheckCommand("/bin/ls").Allowed, "basename match")
	assert.True(t, c.CheckCommand("cat").Allowed)

	res := c.CheckCommand("rm")
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "rm")
}

func TestEmptyAllowlistDenies(t *testing.T) {
	c := NewCapabilityChecker(nil, nil, nil)

	assert.False(t, c.CheckCommand("ls").Allowed)
	assert.False(t, c.CheckFileRead("/tmp/x").Allowed)
	assert.False(t, c.CheckFileWrite("/tmp/x").Allowed)
	assert.NotEmpty(t, c.CheckFileRead("/tmp/x").Reason)
}

func TestPathCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test"), []byte("x"), 0o600))

	c := NewCapabilityChecker([]string{dir}, nil, nil)

	assert.True(t, c.CheckFileRead(filepath.Join(dir, "test")).Allowed)

	res := c.CheckFileRead("/etc/passwd")
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "/etc/passwd")
}

func TestPathCheckNonExistentFile(t *testing.T) {
	dir := t.TempDir()
	c := NewCapabilityChecker(nil, []string{dir}, nil)

	// Write target does not exist yet: parent canonicalization applies.
	assert.True(t, c.CheckFileWrite(filepath.Join(dir, "new.txt")).Allowed)
	assert.False(t, c.CheckFileWrite("/nonexistent-root/new.txt").Allowed)
}

func TestPathCheckTraversal(t *testing.T) {
	dir := t.TempDir()
	c := NewCapabilityChecker([]string{dir}, nil, nil)

	// ../ escapes collapse during canonicalization and are denied.
	res := c.CheckFileRead(filepath.Join(dir, "..", "outside"))
	assert.False(t, res.Allowed)
}

func TestPathCheckSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o600))

	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(secret, link))

	c := NewCapabilityChecker([]string{dir}, nil, nil)
	assert.False(t, c.CheckFileRead(link).Allowed, "symlink target outside the prefix must be denied")
}

func TestExactFileAllowlist(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "only.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))

	c := NewCapabilityChecker([]string{file}, nil, nil)
	assert.True(t, c.CheckFileRead(file).Allowed)
	assert.False(t, c.CheckFileRead(filepath.Join(dir, "other.txt")).Allowed)
}

func TestCheckIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	c := NewCapabilityChecker([]string{dir}, nil, []string{"echo"})

	for i := 0; i < 3; i++ {
		assert.True(t, c.CheckFileRead(dir).Allowed)
		assert.True(t, c.CheckCommand("echo").Allowed)
		assert.False(t, c.CheckCommand("rm").Allowed)
	}
}
