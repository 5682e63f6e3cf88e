package record

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// greptimeClient is the subset of the ingester client used here.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeRecorder writes samples to GreptimeDB in batches.
type GreptimeRecorder struct {
	client    greptimeClient
	table     string
	batchSize int

	mu  sync.Mutex
	buf []Sample
}

// NewGreptimeRecorder connects to endpoint (host:port) and writes into database.table.
func NewGreptimeRecorder(endpoint, database, tableName string, batchSize int) (*GreptimeRecorder, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("greptime port %q: %w", portStr, err)
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &GreptimeRecorder{client: client, table: tableName, batchSize: batchSize}, nil
}

// Record buffers a sample and flushes once the batch is full.
func (w *GreptimeRecorder) Record(s Sample) error {
	w.mu.Lock()
	w.buf = append(w.buf, s)
	if len(w.buf) < w.batchSize {
		w.mu.Unlock()
		return nil
	}
	rows := w.buf
	w.buf = nil
	w.mu.Unlock()
	return w.write(context.Background(), rows)
}

// Flush writes any buffered samples.
func (w *GreptimeRecorder) Flush(ctx context.Context) error {
	w.mu.Lock()
	rows := w.buf
	w.buf = nil
	w.mu.Unlock()
	return w.write(ctx, rows)
}

// Close flushes buffered samples.
func (w *GreptimeRecorder) Close() error {
	return w.Flush(context.Background())
}

func (w *GreptimeRecorder) write(ctx context.Context, rows []Sample) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("profile_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("node_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("topic", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("value", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("value_num", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("payload", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		value, _ := json.Marshal(r.Value)
		if err := tbl.AddRow(r.ProfileID, r.NodeID, r.Topic, string(value), numeric(r.Value), string(r.Payload), r.Timestamp); err != nil {
			return err
		}
	}
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write of %d samples: %w", len(rows), err)
	}
	return nil
}

// numeric maps a sample value onto a float column. Non-numeric values become 0.
func numeric(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
	}
	return 0
}
