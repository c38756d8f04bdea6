// Package output persists generated artifacts. Writes are atomic (temp file
// plus rename) so a crash or failure mid-write never corrupts previously
// generated output.
package output

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// fingerprintPrefix matches the second header line of generated artifacts.
const fingerprintPrefix = "// swagger2ts fingerprint: "

// Write atomically replaces path with content, creating parent directories
// as needed.
func Write(path string, content []byte) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolve output path %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	tmp := abs + ".tmp-" + time.Now().Format("20060102150405.000000000")
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return errors.Wrapf(err, "write temp file for %s", abs)
	}
	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "replace %s", abs)
	}
	return nil
}

// ExistingFingerprint reads the fingerprint header from a previously written
// artifact. It returns "" when the file does not exist or carries no
// fingerprint line, which callers treat as "always stale".
func ExistingFingerprint(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for i := 0; i < 2 && scanner.Scan(); i++ {
		line := scanner.Text()
		if strings.HasPrefix(line, fingerprintPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, fingerprintPrefix))
		}
	}
	return ""
}
