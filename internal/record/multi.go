package record

import "errors"

// MultiRecorder fans samples out to several recorders.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a MultiRecorder. Nil entries are skipped.
func NewMultiRecorder(rs ...Recorder) *MultiRecorder {
	mr := &MultiRecorder{}
	for _, r := range rs {
		if r != nil {
			mr.recorders = append(mr.recorders, r)
		}
	}
	return mr
}

// Len returns the number of wrapped recorders.
func (m *MultiRecorder) Len() int { return len(m.recorders) }

// Record sends a sample to every recorder. All recorders are tried; errors are joined.
func (m *MultiRecorder) Record(s Sample) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Record(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every recorder holding resources.
func (m *MultiRecorder) Close() error {
	var errs []error
	for _, r := range m.recorders {
		if err := Close(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
