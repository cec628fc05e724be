package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimitSwitchInvertsDirection(t *testing.T) {
	ls := NewLimitSwitch(10*time.Second, nil)
	require.Equal(t, DirLeft, ls.Apply(DirLeft))

	ls.Trip(SideLeft)
	require.True(t, ls.Inverted())
	require.Equal(t, DirRight, ls.Apply(DirLeft))

	ls.Trip(SideRight)
	require.False(t, ls.Inverted())
	require.Equal(t, DirLeft, ls.Apply(DirLeft))
}

func TestLimitSwitchRepeatTripRaisesError(t *testing.T) {
	var errSide *Side
	ls := NewLimitSwitch(10*time.Second, func(side Side) { errSide = &side })
	now := time.Now()
	ls.now = func() time.Time { return now }

	ls.Trip(SideLeft)
	require.Nil(t, errSide)

	now = now.Add(3 * time.Second)
	ls.Trip(SideLeft)
	require.NotNil(t, errSide)
	require.Equal(t, SideLeft, *errSide)
}

func TestLimitSwitchTripOutsideWindowIsQuiet(t *testing.T) {
	calls := 0
	ls := NewLimitSwitch(10*time.Second, func(Side) { calls++ })
	now := time.Now()
	ls.now = func() time.Time { return now }

	ls.Trip(SideLeft)
	now = now.Add(30 * time.Second)
	ls.Trip(SideRight)
	require.Zero(t, calls)
}
