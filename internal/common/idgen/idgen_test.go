package idgen

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suffixPattern = regexp.MustCompile(`^[0-9A-Z]{6}$`)

func TestBase36_Generate(t *testing.T) {
	g := NewBase36()
	for i := 0; i < 200; i++ {
		s, err := g.Generate(SuffixLength)
		require.NoError(t, err)
		assert.Regexp(t, suffixPattern, s)
	}
}

func TestBase36_ReaderFailure(t *testing.T) {
	g := &Base36{reader: strings.NewReader("")}
	_, err := g.Generate(SuffixLength)
	assert.Error(t, err)
}

func TestNumber(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "CERT-2026-AB12CD", Number("CERT", at, "AB12CD"))
}

func TestGeneratorFunc(t *testing.T) {
	g := GeneratorFunc(func(n int) (string, error) { return strings.Repeat("Z", n), nil })
	s, err := g.Generate(3)
	require.NoError(t, err)
	assert.Equal(t, "ZZZ", s)
}
