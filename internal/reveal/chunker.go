// Package reveal streams stage prompts to the browser in small timed chunks,
// the "typewriter" effect, and records when a prompt has fully shown.
package reveal

import (
	"math/rand/v2"
	"time"
)

// Default pacing of a reveal.
const (
	DefaultMinChars = 2
	DefaultMaxChars = 6
	DefaultMinDelay = 40 * time.Millisecond
	DefaultMaxDelay = 80 * time.Millisecond
)

// Frame is one chunk of a prompt and the pause before it is shown.
type Frame struct {
	Text  string
	Delay time.Duration
}

// Chunker splits prompts into frames. A Chunker is not safe for concurrent use.
type Chunker struct {
	MinChars int
	MaxChars int
	MinDelay time.Duration
	MaxDelay time.Duration

	rng *rand.Rand
}

// NewChunker returns a chunker with the default pacing.
func NewChunker(seed uint64) *Chunker {
	return &Chunker{
		MinChars: DefaultMinChars,
		MaxChars: DefaultMaxChars,
		MinDelay: DefaultMinDelay,
		MaxDelay: DefaultMaxDelay,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Split cuts text into frames on rune boundaries. Concatenating the frame
// texts yields text.
func (c *Chunker) Split(text string) []Frame {
	runes := []rune(text)
	var frames []Frame
	for len(runes) > 0 {
		n := max(c.between(c.MinChars, c.MaxChars), 1)
		if n > len(runes) {
			n = len(runes)
		}
		frames = append(frames, Frame{
			Text:  string(runes[:n]),
			Delay: time.Duration(c.between(int(c.MinDelay), int(c.MaxDelay))),
		})
		runes = runes[n:]
	}
	return frames
}

func (c *Chunker) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + c.rng.IntN(hi-lo+1)
}
