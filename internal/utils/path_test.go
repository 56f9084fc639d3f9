package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ResolvePath("~/images")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "images"), got)

	got, err = ResolvePath("a/../b")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "b", filepath.Base(got))

	_, err = ResolvePath("")
	assert.Error(t, err)
}

func TestNormPath(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"relative", "./portfolio/a.jpg", "portfolio/a.jpg"},
		{"windows", "portfolio\\2024\\a.jpg", "portfolio/2024/a.jpg"},
		{"leading-slash", "/portfolio/a.jpg", "portfolio/a.jpg"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, NormPath(c.input))
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "*****", MaskSecret("abc"))
	assert.Equal(t, "AKIA*****", MaskSecret("AKIAXXXXYYYY"))
}
