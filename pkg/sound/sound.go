// Package sound holds the alert tone recipes. Each notification kind maps to
// a fixed sequence of oscillator tones; players render them however the host
// platform allows.
package sound

import "time"

type Kind string

const (
	KindMessage      Kind = "message"
	KindTyping       Kind = "typing"
	KindNotification Kind = "notification"
	KindSuccess      Kind = "success"
	KindError        Kind = "error"
	KindGeneric      Kind = "generic"
)

type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
)

// Tone is one oscillator burst. The gain ramps linearly from 0 to Volume in
// Attack, then exponentially down to Floor at Duration.
type Tone struct {
	Frequency float64       `json:"frequency"`
	Duration  time.Duration `json:"duration"`
	Waveform  Waveform      `json:"waveform"`
	Volume    float64       `json:"volume"`
	Offset    time.Duration `json:"offset"`
}

type Recipe struct {
	Kind   Kind          `json:"kind"`
	Tones  []Tone        `json:"tones"`
	Attack time.Duration `json:"attack"`
	Floor  float64       `json:"floor"`
}

const (
	attack = 10 * time.Millisecond
	floor  = 0.001
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

var recipes = map[Kind][]Tone{
	KindMessage: {
		{Frequency: 800, Duration: ms(150), Waveform: Sine, Volume: 0.4},
		{Frequency: 600, Duration: ms(150), Waveform: Sine, Volume: 0.3, Offset: ms(100)},
	},
	KindTyping: {
		{Frequency: 400, Duration: ms(80), Waveform: Square, Volume: 0.2},
	},
	// C-E-G
	KindNotification: {
		{Frequency: 523, Duration: ms(200), Waveform: Sine, Volume: 0.3},
		{Frequency: 659, Duration: ms(200), Waveform: Sine, Volume: 0.3, Offset: ms(100)},
		{Frequency: 784, Duration: ms(300), Waveform: Sine, Volume: 0.3, Offset: ms(200)},
	},
	KindError: {
		{Frequency: 400, Duration: ms(300), Waveform: Sawtooth, Volume: 0.4},
	},
	KindSuccess: {
		{Frequency: 523, Duration: ms(150), Waveform: Sine, Volume: 0.3},
		{Frequency: 659, Duration: ms(150), Waveform: Sine, Volume: 0.3, Offset: ms(75)},
		{Frequency: 784, Duration: ms(200), Waveform: Sine, Volume: 0.3, Offset: ms(150)},
	},
	KindGeneric: {
		{Frequency: 440, Duration: ms(200), Waveform: Sine, Volume: 0.3},
	},
}

// RecipeFor returns the recipe for kind. Unknown kinds get the generic beep.
func RecipeFor(kind Kind) Recipe {
	tones, ok := recipes[kind]
	if !ok {
		kind = KindGeneric
		tones = recipes[KindGeneric]
	}
	out := make([]Tone, len(tones))
	copy(out, tones)
	return Recipe{Kind: kind, Tones: out, Attack: attack, Floor: floor}
}

// Length is the time from the first tone's start to the last tone's end.
func (r Recipe) Length() time.Duration {
	var end time.Duration
	for _, t := range r.Tones {
		if e := t.Offset + t.Duration; e > end {
			end = e
		}
	}
	return end
}

// Player renders a recipe. Implementations must not block the caller.
type Player interface {
	Play(r Recipe)
}

type PlayerFunc func(Recipe)

func (f PlayerFunc) Play(r Recipe) { f(r) }

// Nop drops every sound.
var Nop Player = PlayerFunc(func(Recipe) {})
