// Package idgen produces the random suffixes used in human-readable
// certificate and application numbers.
package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// SuffixLength is the number of base-36 characters in a generated suffix.
const SuffixLength = 6

// Generator returns random upper-case base-36 strings of length n.
type Generator interface {
	Generate(n int) (string, error)
}

type Base36 struct {
	reader io.Reader
}

// NewBase36 returns a Generator backed by crypto/rand.
func NewBase36() *Base36 {
	return &Base36{reader: rand.Reader}
}

func (g *Base36) Generate(n int) (string, error) {
	out := make([]byte, n)
	base := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(g.reader, base)
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

// Number formats PREFIX-YEAR-SUFFIX.
func Number(prefix string, at time.Time, suffix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, at.Year(), suffix)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(n int) (string, error)

func (f GeneratorFunc) Generate(n int) (string, error) {
	return f(n)
}
