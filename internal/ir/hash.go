package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTemplate  = "qflow/template/v1"
	DomainAnswerSet = "qflow/answers/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TemplateHash computes a content-addressed hash of a compiled template.
// Sessions record it so a resumed session can detect that the template
// changed underneath it.
func TemplateHash(t *Template) (string, error) {
	canonical, err := MarshalCanonical(t)
	if err != nil {
		return "", fmt.Errorf("TemplateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTemplate, canonical), nil
}

// AnswerSetHash computes a content-addressed hash of an answer set.
// Identical answers produce identical hashes regardless of submission order.
func AnswerSetHash(a AnswerSet) (string, error) {
	if a == nil {
		a = AnswerSet{}
	}
	canonical, err := MarshalCanonical(a)
	if err != nil {
		return "", fmt.Errorf("AnswerSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAnswerSet, canonical), nil
}

// MustTemplateHash is like TemplateHash but panics on error.
// Use only in tests or when the template is known to be valid.
func MustTemplateHash(t *Template) string {
	h, err := TemplateHash(t)
	if err != nil {
		panic(err)
	}
	return h
}
