package color_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lockguard/lockguard/pkg/color"
	"github.com/lockguard/lockguard/pkg/model"
)

func withColor(t *testing.T, on bool) {
	was := color.Enabled()
	if on {
		color.Enable()
	} else {
		color.Disable()
	}
	t.Cleanup(func() {
		if was {
			color.Enable()
		} else {
			color.Disable()
		}
	})
}

func TestEnableDisable(t *testing.T) {
	withColor(t, true)
	assert.True(t, color.Enabled())
	color.Disable()
	assert.False(t, color.Enabled())
}

func TestDisabledIsPlain(t *testing.T) {
	withColor(t, false)
	assert.Equal(t, "done", color.Success("done"))
	assert.Equal(t, "locked", color.State(true))
	assert.Equal(t, "unlocked", color.State(false))
	assert.Equal(t, "timer", color.Policy(model.PolicyTimer))
}

func TestEnabledAddsEscapes(t *testing.T) {
	withColor(t, true)
	out := color.Error("boom")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "\x1b[")
	assert.Equal(t, "always", color.Policy(model.PolicyAlways))
}
