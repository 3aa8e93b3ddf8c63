package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	orig := []string{Version, BuildTime, GitCommit}
	t.Cleanup(func() { Version, BuildTime, GitCommit = orig[0], orig[1], orig[2] })

	Version, BuildTime, GitCommit = "dev", "", ""
	assert.Equal(t, "dev", GetVersion())

	Version, BuildTime, GitCommit = "1.2.0", "2026-01-01", "0123456789abcdef"
	assert.Equal(t, "v1.2.0 (built 2026-01-01) commit 01234567", GetVersion())

	Version, BuildTime, GitCommit = "v1.2.0", "", "abc"
	assert.Equal(t, "v1.2.0 commit abc", GetVersion())
}
