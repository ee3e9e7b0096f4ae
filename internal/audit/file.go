package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"kvconsole/internal/logger"
)

// fileMirror appends entries to a JSON-lines file. Callers hold Log.mu.
type fileMirror struct {
	path string
	file *os.File
	enc  *json.Encoder
}

func openFileMirror(name string) (*fileMirror, error) {
	path, err := logger.ResolvePath(name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	return &fileMirror{
		path: path,
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

func (m *fileMirror) write(e Entry) error {
	return m.enc.Encode(e)
}

func (m *fileMirror) close() error {
	return m.file.Close()
}
