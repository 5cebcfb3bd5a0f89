package content

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
)

const (
	DefaultImageBaseURL = "https://picsum.photos/400/300"
	DefaultWelcome      = "Welcome!"

	// imageRange is the exclusive upper bound of the image query parameter.
	imageRange = 1000
)

// DefaultMessages is the canned phrase set used when none is configured.
var DefaultMessages = []string{
	"What a wonderful day!",
	"Keep going, you can do it!",
	"Remember to drink water and take a break!",
	"Keep smiling!",
	"Enjoy the moment",
}

// Content is the single value distributed to every client.
type Content struct {
	ImageURL string `json:"imageUrl"`
	Message  string `json:"message"`
}

// Rand is the random source used to build content.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Generator produces new Content values.
type Generator struct {
	imageBaseURL string
	messages     []string
	rand         Rand
}

// NewGenerator creates a Generator. Empty arguments fall back to the defaults
// and a nil rand uses the math/rand/v2 global source.
func NewGenerator(imageBaseURL string, messages []string, r Rand) *Generator {
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}
	if len(messages) == 0 {
		messages = DefaultMessages
	}
	if r == nil {
		r = globalRand{}
	}

	msgs := make([]string, len(messages))
	copy(msgs, messages)

	return &Generator{
		imageBaseURL: imageBaseURL,
		messages:     msgs,
		rand:         r,
	}
}

// Initial returns the value served before the first update.
func (g *Generator) Initial() Content {
	return Content{
		ImageURL: g.imageURL(1),
		Message:  DefaultWelcome,
	}
}

// Next builds a fresh Content value.
func (g *Generator) Next() Content {
	return Content{
		ImageURL: g.imageURL(g.rand.IntN(imageRange)),
		Message:  g.messages[g.rand.IntN(len(g.messages))],
	}
}

// Messages returns a copy of the configured phrase set.
func (g *Generator) Messages() []string {
	out := make([]string, len(g.messages))
	copy(out, g.messages)
	return out
}

func (g *Generator) imageURL(n int) string {
	return fmt.Sprintf("%s?random=%d", g.imageBaseURL, n)
}

// Store holds the current Content. The value is swapped wholesale and never
// mutated in place, so readers need no lock.
type Store struct {
	gen     *Generator
	current atomic.Pointer[Content]
}

// NewStore creates a Store seeded with the generator's initial value.
func NewStore(gen *Generator) *Store {
	s := &Store{gen: gen}
	initial := gen.Initial()
	s.current.Store(&initial)
	return s
}

// Current returns the latest value.
func (s *Store) Current() Content {
	return *s.current.Load()
}

// Update replaces the stored value with a newly generated one and returns it.
func (s *Store) Update() Content {
	next := s.gen.Next()
	s.current.Store(&next)
	return next
}
