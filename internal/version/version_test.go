package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetVersion(t *testing.T) {
	t.Helper()
	v, r, b := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = v, r, b
	})
}

func TestVersionStrings(t *testing.T) {
	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)
	assert.Contains(t, Detailed(), "/")
	assert.True(t, strings.HasPrefix(UserAgent(), AppName+"/"))
}

func TestFillFromBuildInfo_DevBuild(t *testing.T) {
	resetVersion(t)
	Version, Revision, BuildDate = devVersion, devRevision, ""

	fillFromBuildInfo("v1.4.0", map[string]string{
		"vcs.revision": "abcdef1234567890",
		"vcs.modified": "true",
		"vcs.time":     "2026-01-02T03:04:05Z",
	})

	assert.Equal(t, "1.4.0", Version)
	assert.Equal(t, "abcdef123456-dirty", Revision)
	assert.Equal(t, "2026-01-02T03:04:05Z", BuildDate)
}

func TestFillFromBuildInfo_KeepsLdflags(t *testing.T) {
	resetVersion(t)
	Version, Revision, BuildDate = "2.0.0", "cafebabe", "from-ldflags"

	fillFromBuildInfo("(devel)", map[string]string{"vcs.revision": "abcdef"})

	assert.Equal(t, "2.0.0", Version)
	assert.Equal(t, "cafebabe", Revision)
	assert.Equal(t, "from-ldflags", BuildDate)
}
