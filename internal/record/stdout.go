package record

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// JSONStdoutRecorder prints samples as JSON to STDOUT.
type JSONStdoutRecorder struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutRecorder creates a JSONStdoutRecorder writing to os.Stdout.
func NewJSONStdoutRecorder() *JSONStdoutRecorder {
	return &JSONStdoutRecorder{out: os.Stdout}
}

// Record outputs a sample in JSON format.
func (w *JSONStdoutRecorder) Record(s Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
