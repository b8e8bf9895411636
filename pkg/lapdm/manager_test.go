package lapdm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/lapdm-go/pkg/datalink"
	"avaneesh/lapdm-go/pkg/frame"
	"avaneesh/lapdm-go/pkg/internal/logger"
)

func TestManager_Lifecycle(t *testing.T) {
	m := NewManagerWithLogger(logger.NewNoOpLogger())

	ch, err := m.AddChannel("sdcch0", frame.RoleBTS, DefaultChannelConfig())
	require.NoError(t, err)
	assert.Equal(t, "sdcch0", ch.Name())

	_, err = m.AddChannel("sdcch0", frame.RoleBTS, DefaultChannelConfig())
	assert.ErrorIs(t, err, ErrChannelExists)

	_, err = m.AddChannel("tch1", frame.RoleMS, DefaultChannelConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"sdcch0", "tch1"}, m.Channels())
	assert.Equal(t, 2, m.ChannelCount())

	got, ok := m.GetChannel("sdcch0")
	require.True(t, ok)
	assert.Same(t, ch, got)

	require.NoError(t, m.RemoveChannel("sdcch0"))
	state, err := ch.DCCH().State(frame.SAPI0)
	require.NoError(t, err)
	assert.Equal(t, datalink.StateNull, state, "removed channel is exited")

	assert.ErrorIs(t, m.RemoveChannel("sdcch0"), ErrChannelNotFound)

	m.Shutdown()
	assert.Zero(t, m.ChannelCount())
}

func TestManager_InvalidConfig(t *testing.T) {
	m := NewManagerWithLogger(nil)
	cfg := DefaultChannelConfig()
	cfg.T200DCCH = -1

	_, err := m.AddChannel("bad", frame.RoleMS, cfg)
	assert.ErrorIs(t, err, datalink.ErrInvalidConfig)
	assert.Zero(t, m.ChannelCount())
}
