// Package archive builds function deployment packages.
package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"debug/elf"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BootstrapName is the entry point file name the provided.* runtimes execute.
const BootstrapName = "bootstrap"

// Entries carry a fixed timestamp so that unchanged sources produce
// byte-identical archives.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Result describes a written archive.
type Result struct {
	Path   string
	Entry  string
	SHA256 string // base64, as reported by Lambda's CodeSha256
}

// Build zips the single file at source into output. Executable ELF binaries
// are stored as "bootstrap"; anything else keeps its base name.
func Build(source, output string) (*Result, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}

	entry := filepath.Base(source)
	mode := os.FileMode(0o644)
	if isELF(data) {
		entry = BootstrapName
		mode = 0o755
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{
		Name:     entry,
		Method:   zip.Deflate,
		Modified: epoch,
	}
	hdr.SetMode(mode)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write zip entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize zip: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}

	return &Result{
		Path:   output,
		Entry:  entry,
		SHA256: Sum(buf.Bytes()),
	}, nil
}

// Sum returns the base64 SHA-256 of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func isELF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == elf.ELFMAG
}
