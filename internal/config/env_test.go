package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarvestSecrets(t *testing.T) {
	t.Setenv("MYAPP_PASSWORD", "hunter22")
	t.Setenv("MYAPP_EMAIL", "qa@example.com")
	t.Setenv("MYAPP_API_KEY", "sk-abc123")
	t.Setenv("UNRELATED_FLAG", "on")

	secrets := HarvestSecrets()

	byName := map[string]Secret{}
	for _, s := range secrets {
		byName[s.Name] = s
	}

	require.Contains(t, byName, "MYAPP_PASSWORD")
	assert.Equal(t, CategoryCredential, byName["MYAPP_PASSWORD"].Category)
	require.Contains(t, byName, "MYAPP_API_KEY")
	assert.Equal(t, CategoryCredential, byName["MYAPP_API_KEY"].Category)
	require.Contains(t, byName, "MYAPP_EMAIL")
	assert.Equal(t, CategoryUserInfo, byName["MYAPP_EMAIL"].Category)

	assert.NotContains(t, byName, "UNRELATED_FLAG")
	assert.NotContains(t, byName, "PATH")
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "****", MaskValue("abc"))
	assert.Equal(t, "****", MaskValue(""))
	assert.Equal(t, "hu******", MaskValue("hunter22"))
}

func TestFindSecret(t *testing.T) {
	secrets := []Secret{{Name: "EMAIL", Category: CategoryUserInfo, Value: "a@b.c"}}

	s, ok := FindSecret(secrets, "EMAIL")
	assert.True(t, ok)
	assert.Equal(t, "a@b.c", s.Value)

	_, ok = FindSecret(secrets, "PASSWORD")
	assert.False(t, ok)
}
