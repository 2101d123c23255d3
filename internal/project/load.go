package project

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Load reads a project snapshot from JSON.
func Load(r io.Reader) (*Project, error) {
	var p Project
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	return &p, nil
}

// LoadFile reads a project snapshot from a JSON file on disk.
func LoadFile(path string) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	defer f.Close()
	return Load(f)
}
