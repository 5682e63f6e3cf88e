package record

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// Publisher re-publishes recorded payloads.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Replay re-publishes samples from r to pub. A speed >0 accelerates playback.
// If speed <= 0, no artificial delay is inserted.
func Replay(r io.Reader, pub Publisher, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var s Sample
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := s.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := pub.Publish(s.Topic, s.Payload); err != nil {
			return n, err
		}
		n++
		prev = s.Timestamp
	}
}

// ReplayFile opens a JSONL recording and replays it.
func ReplayFile(path string, pub Publisher, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Replay(f, pub, speed)
}
