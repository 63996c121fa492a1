package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IndexFile is the name of the report written into the output directory.
const IndexFile = "report.json"

// Write stores index as <outputDir>/report.json and returns its path.
func Write(outputDir string, index *Index) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(outputDir, IndexFile)
	if err := atomicWriteJSON(path, index); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads a report written by Write.
func Read(path string) (*Index, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- report path chosen by the user
	if err != nil {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &index, nil
}

// atomicWriteJSON writes through a temp file in the same directory so a
// reader never sees a partial report.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
