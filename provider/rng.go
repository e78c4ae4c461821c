package provider

import (
	"math/rand"
	"sync"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Codes generates non-cryptographically-secure random alphanumeric
// strings, used for share passwords and folder name suffixes.
type Codes struct {
	sync.Mutex
	gen *rand.Rand

	n int
}

// NewCodes returns a Codes that generates n-character strings from src.
func NewCodes(n int, src rand.Source) *Codes {
	return &Codes{gen: rand.New(src), n: n}
}

// Rand generates and returns a random code. It is safe for concurrent
// use by multiple goroutines.
func (c *Codes) Rand() string {
	defer c.Unlock()
	c.Lock()
	buf := make([]byte, c.n)
	for i := range buf {
		buf[i] = codeAlphabet[c.gen.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
