package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesBuiltinPlatforms(t *testing.T) {
	for _, name := range []string{"github", "gitlab", "gitea"} {
		c, err := New(name, Config{Repository: "o/r", Token: "t", Timeout: time.Second})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}

func TestRegistryUnknownPlatform(t *testing.T) {
	_, err := New("bitbucket", Config{})
	require.Error(t, err)
}

func TestGitHubDefaultLabels(t *testing.T) {
	c, err := New("github", Config{Repository: "o/r", Token: "t"})
	require.NoError(t, err)
	assert.Contains(t, c.DefaultLabels(), "self-hosted")
}
