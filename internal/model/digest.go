package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrDigestMismatch = errors.New("model digest mismatch")

// FileDigest returns the hex encoded SHA-256 of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash model: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyDigest hashes the file at path and compares it with want. An empty
// want skips the comparison. The computed digest is always returned.
func VerifyDigest(path, want string) (string, error) {
	got, err := FileDigest(path)
	if err != nil {
		return "", err
	}

	want = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(want)), "sha256:")
	if want != "" && want != got {
		return got, fmt.Errorf("%w: %s has sha256 %s, pinned %s", ErrDigestMismatch, path, got, want)
	}

	return got, nil
}
