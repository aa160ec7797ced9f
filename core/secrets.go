package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// SecretGenerator produces subscription signing secrets of the form
// Prefix + hex(Bytes random bytes).
type SecretGenerator struct {
	Prefix string
	Bytes  int
	Source io.Reader
}

func (g SecretGenerator) Generate() (string, error) {
	size := g.Bytes
	if size <= 0 {
		size = DefaultSecretBytes
	}
	source := g.Source
	if source == nil {
		source = rand.Reader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(source, buf); err != nil {
		return "", fmt.Errorf("core: generate secret: %w", err)
	}
	return g.Prefix + hex.EncodeToString(buf), nil
}
