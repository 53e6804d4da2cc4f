package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type Verb int

const (
	VerbChat Verb = iota
	VerbForward
	VerbReverse
	VerbLeft
	VerbRight
	VerbStop
	VerbMotorOn
	VerbMotorOff
	VerbPan
	VerbTilt
	VerbSpeed
	VerbVolume
)

var verbNames = map[Verb]string{
	VerbChat:     "chat",
	VerbForward:  "forward",
	VerbReverse:  "reverse",
	VerbLeft:     "left",
	VerbRight:    "right",
	VerbStop:     "stop",
	VerbMotorOn:  "motor1_on",
	VerbMotorOff: "motor1_off",
	VerbPan:      "pan",
	VerbTilt:     "tilt",
	VerbSpeed:    "speed",
	VerbVolume:   "volume",
}

var bareVerbs = map[string]Verb{
	"forward":    VerbForward,
	"reverse":    VerbReverse,
	"left":       VerbLeft,
	"right":      VerbRight,
	"stop":       VerbStop,
	"motor1_on":  VerbMotorOn,
	"motor1_off": VerbMotorOff,
}

var argVerbs = map[string]Verb{
	"pan":    VerbPan,
	"tilt":   VerbTilt,
	"speed":  VerbSpeed,
	"volume": VerbVolume,
}

// ArgRange is the inclusive validity range of a numeric argument.
type ArgRange struct {
	Min int
	Max int
}

var argRanges = map[Verb]ArgRange{
	VerbPan:    {Min: 0, Max: 180},
	VerbTilt:   {Min: 0, Max: 180},
	VerbSpeed:  {Min: 0, Max: 255},
	VerbVolume: {Min: 0, Max: 100},
}

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return "unknown"
}

// HasArg reports whether the verb carries a numeric argument.
func (v Verb) HasArg() bool {
	_, ok := argRanges[v]
	return ok
}

// Range returns the validity range of the verb's argument.
func (v Verb) Range() (ArgRange, bool) {
	r, ok := argRanges[v]
	return r, ok
}

// IsMovement reports whether the verb drives the motors directly.
func (v Verb) IsMovement() bool {
	switch v {
	case VerbForward, VerbReverse, VerbLeft, VerbRight, VerbStop:
		return true
	}
	return false
}

// Command is a directive parsed from controller text.
type Command struct {
	Verb Verb
	Arg  int
	Text string
}

// Wire returns the text forwarded to the actuator.
func (c Command) Wire() string {
	if c.Verb.HasArg() {
		return fmt.Sprintf("%s %d", c.Verb, c.Arg)
	}
	if c.Verb == VerbChat {
		return c.Text
	}
	return c.Verb.String()
}

// RangeError reports a missing, malformed or out of range numeric argument.
type RangeError struct {
	Verb  Verb
	Input string
	Range ArgRange
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid %s level %q: expected %d-%d", e.Verb, e.Input, e.Range.Min, e.Range.Max)
}

func (e *RangeError) Unwrap() error {
	return ErrArgumentRange
}

// ParseCommand interprets one text message from a controller. Text that
// matches no verb is returned as chat. Argument verbs with a bad argument
// return a *RangeError.
func ParseCommand(text string) (Command, error) {
	msg := strings.TrimSpace(text)

	if verb, ok := bareVerbs[msg]; ok {
		return Command{Verb: verb, Text: msg}, nil
	}

	name, rawArg, found := strings.Cut(msg, " ")
	if !found {
		return Command{Verb: VerbChat, Text: msg}, nil
	}
	verb, ok := argVerbs[name]
	if !ok {
		return Command{Verb: VerbChat, Text: msg}, nil
	}

	rng := argRanges[verb]
	rawArg = strings.TrimSpace(rawArg)
	n, err := strconv.Atoi(rawArg)
	if err != nil || n < rng.Min || n > rng.Max {
		return Command{Verb: verb, Text: msg}, &RangeError{Verb: verb, Input: rawArg, Range: rng}
	}

	return Command{Verb: verb, Arg: n, Text: msg}, nil
}
