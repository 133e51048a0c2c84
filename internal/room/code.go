package room

import (
	"math/rand"
	"strings"
	"sync"
)

const (
	// codeLength is the size of a human-typeable room code, e.g. "3GQZ".
	codeLength = 4

	// codeAlphabet drops look-alike characters (0/O, 1/I/L) so codes
	// survive being read out loud across a pub table.
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	// maxCodeAttempts bounds collision retries before create_room gives up.
	maxCodeAttempts = 50
)

// codeGenerator produces random room codes. It owns its rand source so
// tests can seed it deterministically.
type codeGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newCodeGenerator(seed int64) *codeGenerator {
	return &codeGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *codeGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[g.rng.Intn(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode uppercases and trims a client-typed room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
