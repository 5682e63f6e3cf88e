package record

import (
	"encoding/json"
	"os"
	"sync"
)

// FileRecorder appends samples to a JSONL file.
type FileRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileRecorder creates or truncates path.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileRecorder{file: f, enc: json.NewEncoder(f)}, nil
}

// Record writes one sample as a JSON line.
func (f *FileRecorder) Record(s Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc.Encode(s)
}

// Close closes the underlying file.
func (f *FileRecorder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
