package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand_BareVerbs(t *testing.T) {
	cases := map[string]Verb{
		"forward":      VerbForward,
		"reverse":      VerbReverse,
		"left":         VerbLeft,
		"right":        VerbRight,
		"stop":         VerbStop,
		"motor1_on":    VerbMotorOn,
		"motor1_off":   VerbMotorOff,
		"  forward \n": VerbForward,
	}

	for input, want := range cases {
		cmd, err := ParseCommand(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, cmd.Verb, input)
		assert.Equal(t, want.String(), cmd.Wire())
	}
}

func TestParseCommand_ArgumentRanges(t *testing.T) {
	for _, verb := range []Verb{VerbPan, VerbTilt, VerbSpeed, VerbVolume} {
		rng, ok := verb.Range()
		require.True(t, ok)

		for n := rng.Min; n <= rng.Max; n++ {
			cmd, err := ParseCommand(fmt.Sprintf("%s %d", verb, n))
			require.NoError(t, err)
			assert.Equal(t, verb, cmd.Verb)
			assert.Equal(t, n, cmd.Arg)
			assert.Equal(t, fmt.Sprintf("%s %d", verb, n), cmd.Wire())
		}

		for _, bad := range []string{fmt.Sprint(rng.Min - 1), fmt.Sprint(rng.Max + 1), "abc", "1.5", "9x"} {
			_, err := ParseCommand(fmt.Sprintf("%s %s", verb, bad))
			require.Error(t, err, "%s %q", verb, bad)

			var rangeErr *RangeError
			require.True(t, errors.As(err, &rangeErr))
			assert.Equal(t, verb, rangeErr.Verb)
			assert.Equal(t, rng, rangeErr.Range)
			assert.ErrorIs(t, err, ErrArgumentRange)
		}
	}
}

func TestParseCommand_Chat(t *testing.T) {
	for _, input := range []string{"hello there", "pan", "Forward", "zoom 3", ""} {
		cmd, err := ParseCommand(input)
		require.NoError(t, err)
		assert.Equal(t, VerbChat, cmd.Verb, input)
	}
}

func TestDeviceLabels_Classify(t *testing.T) {
	labels := DefaultDeviceLabels()

	role, ok := labels.Classify("ESP32-DevKit connected!")
	assert.True(t, ok)
	assert.Equal(t, RoleActuatorDevice, role)

	role, ok = labels.Classify("ESP32-CAM connected!")
	assert.True(t, ok)
	assert.Equal(t, RoleCameraDevice, role)

	_, ok = labels.Classify("ESP32-CAM connected")
	assert.False(t, ok)
}

func TestRole_IsController(t *testing.T) {
	assert.True(t, RoleUnclassified.IsController())
	assert.True(t, RoleController.IsController())
	assert.False(t, RoleActuatorDevice.IsController())
	assert.False(t, RoleCameraDevice.IsController())
}
