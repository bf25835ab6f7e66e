package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one calibration sample. Models with multiple inputs list one file
// per input on the same manifest line.
type Entry struct {
	// Line is the 1-based line number in the manifest
	Line int
	// Files are the resolved paths of the sample's inputs
	Files []string
}

// Manifest is a parsed calibration dataset file as consumed by the RKNN
// toolkit build step
type Manifest struct {
	// Path is the manifest file, empty if parsed from a reader
	Path    string
	Entries []Entry
}

// Load reads the calibration manifest from file. Relative entry paths are
// resolved against the directory of the manifest.
func Load(file string) (*Manifest, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening dataset: %w", err)
	}

	defer f.Close()

	m, err := Parse(f, filepath.Dir(file))

	if err != nil {
		return nil, fmt.Errorf("error reading dataset %s: %w", file, err)
	}

	m.Path = file
	return m, nil
}

// Parse reads a manifest with one sample per line. Blank lines and lines
// starting with # are skipped.
func Parse(r io.Reader, baseDir string) (*Manifest, error) {

	m := &Manifest{}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		files := make([]string, len(fields))

		for i, f := range fields {
			if !filepath.IsAbs(f) {
				f = filepath.Join(baseDir, f)
			}

			files[i] = f
		}

		m.Entries = append(m.Entries, Entry{Line: lineNo, Files: files})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(m.Entries) == 0 {
		return nil, errors.New("dataset has no entries")
	}

	width := len(m.Entries[0].Files)

	for _, e := range m.Entries[1:] {
		if len(e.Files) != width {
			return nil, fmt.Errorf("line %d lists %d inputs, expected %d", e.Line, len(e.Files), width)
		}
	}

	return m, nil
}

// Len returns the number of samples
func (m *Manifest) Len() int {
	return len(m.Entries)
}

// Files returns every file referenced by the manifest in order
func (m *Manifest) Files() []string {

	var files []string

	for _, e := range m.Entries {
		files = append(files, e.Files...)
	}

	return files
}

// CheckExists returns an error naming every referenced file that does not
// exist or is a directory
func (m *Manifest) CheckExists() error {

	var errs []error

	for _, e := range m.Entries {
		for _, f := range e.Files {
			info, err := os.Stat(f)

			if err != nil {
				errs = append(errs, fmt.Errorf("line %d: %w", e.Line, err))
				continue
			}

			if info.IsDir() {
				errs = append(errs, fmt.Errorf("line %d: %s is a directory", e.Line, f))
			}
		}
	}

	return errors.Join(errs...)
}
