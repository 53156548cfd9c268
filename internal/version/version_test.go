package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	assert.Equal(t, "v1.2.0", Canonical("1.2"))
	assert.Equal(t, "v0.3.1", Canonical("v0.3.1"))
	assert.Equal(t, "", Canonical("latest"))
}

func TestString(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version, GitCommit = "0.4.0", "0123456789abcdef"
	assert.Equal(t, "0.4.0-01234567", String())
	assert.True(t, IsRelease())
	assert.NotContains(t, StringFull(), "Channel=dev")

	Version = "0.0.0-dev"
	assert.False(t, IsRelease())
	assert.Contains(t, StringFull(), "Channel=dev")
}
