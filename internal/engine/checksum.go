package engine

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hlop3z/cometdb/internal/ast"
)

// Checksum returns the SHA-256 of the canonical serialized operations.
// Serialization is deterministic, so equal operation lists always hash the
// same and an edited migration file is caught at apply time.
func Checksum(ops []ast.Operation) (string, error) {
	data, err := ast.MarshalOperations(ops)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum recomputes a migration's checksum and reports whether it
// matches the recorded one.
func VerifyChecksum(m *Migration) (bool, error) {
	actual, err := Checksum(m.Operations)
	if err != nil {
		return false, err
	}
	return m.Checksum == "" || actual == m.Checksum, nil
}
