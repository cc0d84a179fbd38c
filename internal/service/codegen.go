package service

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Константы генератора кодов
const (
	CodeLength = 7
	// 64 символа: индекс берётся из младших 6 бит случайного байта без перекоса
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

// CodeGenerator выдаёт кандидатов в короткие коды. Уникальность не гарантируется
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodeGenerator генерирует коды из URL-safe алфавита на crypto/rand
type RandomCodeGenerator struct {
	length int
	source io.Reader
}

// NewRandomCodeGenerator создаёт генератор кодов заданной длины (по умолчанию 7)
func NewRandomCodeGenerator(length int) *RandomCodeGenerator {
	if length <= 0 {
		length = CodeLength
	}
	return &RandomCodeGenerator{length: length, source: rand.Reader}
}

// Generate возвращает случайный код
func (g *RandomCodeGenerator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = CodeAlphabet[b&63]
	}
	return string(buf), nil
}
