package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// HashFile returns the lowercase hex SHA-256 digest of the file's bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MatchExtension returns the entry of exts that name ends with, compared
// case-insensitively, and true. It returns false when none match.
func MatchExtension(name string, exts []string) (string, bool) {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return "", false
	}
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return e, true
		}
	}
	return "", false
}
