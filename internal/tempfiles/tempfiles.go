// Package tempfiles provides the write-to-temp-then-rename helper the
// backup manager uses to produce snapshot archives atomically.
package tempfiles

import (
	"fmt"
	"os"
)

// Create makes a temp file in dir (creating it if needed) matching pattern,
// for a caller that will write an archive into it and then rename it into
// place once the write succeeds.
func Create(dir string, pattern string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}
