package record

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
)

func sample(node string, ts time.Time, value any) Sample {
	payload, _ := json.Marshal(map[string]any{"value": value})
	return Sample{ProfileID: "p1", NodeID: node, Topic: "plant/" + node, Value: value, Payload: payload, Timestamp: ts}
}

type capturePublisher struct {
	topics   []string
	payloads []string
}

func (c *capturePublisher) Publish(topic string, payload []byte) error {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, string(payload))
	return nil
}

func TestFileRecorderReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	fr, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}
	base := time.Unix(1000, 0).UTC()
	for i, node := range []string{"temp", "pressure"} {
		if err := fr.Record(sample(node, base.Add(time.Duration(i)*time.Millisecond), float64(i))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := fr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	pub := &capturePublisher{}
	n, err := ReplayFile(path, pub, 0)
	if err != nil {
		t.Fatalf("ReplayFile: %v", err)
	}
	if n != 2 || len(pub.topics) != 2 {
		t.Fatalf("replayed %d samples, topics %v", n, pub.topics)
	}
	if pub.topics[1] != "plant/pressure" || pub.payloads[1] != `{"value":1}` {
		t.Fatalf("unexpected replay: %v %v", pub.topics, pub.payloads)
	}
}

func TestReplayRespectsSpeed(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	base := time.Unix(0, 0)
	enc.Encode(sample("a", base, 1))
	enc.Encode(sample("a", base.Add(200*time.Millisecond), 2))

	start := time.Now()
	if _, err := Replay(&buf, &capturePublisher{}, 4); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond || elapsed > 150*time.Millisecond {
		t.Fatalf("replay at 4x took %v, want about 50ms", elapsed)
	}
}

func TestJSONStdoutRecorder(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutRecorder{out: &buf}
	if err := w.Record(sample("temp", time.Unix(0, 0).UTC(), 3.5)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !strings.Contains(buf.String(), `"node_id":"temp"`) || !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(Sample) error {
	f.calls++
	return errors.New("boom")
}

type countingRecorder struct{ n int }

func (c *countingRecorder) Record(Sample) error { c.n++; return nil }

func TestMultiRecorderTriesAll(t *testing.T) {
	bad := &failingRecorder{}
	good := &countingRecorder{}
	mr := NewMultiRecorder(bad, nil, good)
	if mr.Len() != 2 {
		t.Fatalf("nil recorder should be skipped, len=%d", mr.Len())
	}
	if err := mr.Record(sample("a", time.Now(), 1)); err == nil {
		t.Fatalf("expected joined error")
	}
	if bad.calls != 1 || good.n != 1 {
		t.Fatalf("every recorder should be called: bad=%d good=%d", bad.calls, good.n)
	}
}

type mockGreptimeClient struct {
	tables []*table.Table
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeRecorderBatches(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeRecorder{client: m, table: "simulation_samples", batchSize: 2}
	ts := time.Unix(0, 0).UTC()

	if err := w.Record(sample("temp", ts, 4.5)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(m.tables) != 0 {
		t.Fatalf("batch should not be written before it is full")
	}
	if err := w.Record(sample("flag", ts, true)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected one write, got %d", len(m.tables))
	}
	rows := m.tables[0].GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows.Rows))
	}
	if got := rows.Rows[0].Values[0].GetStringValue(); got != "p1" {
		t.Fatalf("profile_id = %s, want p1", got)
	}
	if got := rows.Rows[1].Values[4].GetF64Value(); got != 1 {
		t.Fatalf("value_num for true = %v, want 1", got)
	}

	if err := w.Record(sample("temp", ts, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(m.tables) != 2 {
		t.Fatalf("Close should flush the remainder, writes=%d", len(m.tables))
	}
}

func TestNumeric(t *testing.T) {
	if numeric("x") != 0 || numeric(2) != 2 || numeric(false) != 0 {
		t.Fatalf("numeric conversion mismatch")
	}
}

func TestNewFileRecorderBadPath(t *testing.T) {
	if _, err := NewFileRecorder(filepath.Join(t.TempDir(), "missing", "x.jsonl")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
