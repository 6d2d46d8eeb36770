package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, initializeConfig())

	assert.Equal(t, 10, viper.GetInt("agent.max_steps"))
	assert.Equal(t, 0.8, viper.GetFloat64("agent.goal_confidence"))
	assert.Equal(t, "gemini-2.0-flash", viper.GetString("oracle.model"))
	assert.True(t, viper.GetBool("browser.headless"))
}

func TestInitializeConfig_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("BUGNINJA_AGENT_MAX_STEPS", "25")
	t.Setenv("BUGNINJA_BROWSER_VIDEO_QUALITY", "high")

	require.NoError(t, initializeConfig())

	assert.Equal(t, 25, viper.GetInt("agent.max_steps"))
	assert.Equal(t, "high", viper.GetString("browser.video_quality"))
}

func TestInitializeConfig_MissingExplicitFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfgFile = "/nonexistent/bugninja.yaml"
	t.Cleanup(func() { cfgFile = "" })

	err := initializeConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}
