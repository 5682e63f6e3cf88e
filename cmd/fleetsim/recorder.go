package main

import (
	"fleetsim/internal/config"
	"fleetsim/internal/record"
)

// newRecorder builds the sample recorders enabled in cfg. It returns nil when
// recording is disabled.
func newRecorder(cfg config.RecorderConfig) (record.Recorder, error) {
	var rs []record.Recorder
	closeAll := func() {
		for _, r := range rs {
			record.Close(r)
		}
	}
	if cfg.Stdout {
		rs = append(rs, record.NewJSONStdoutRecorder())
	}
	if cfg.File != "" {
		fr, err := record.NewFileRecorder(cfg.File)
		if err != nil {
			closeAll()
			return nil, err
		}
		rs = append(rs, fr)
	}
	if cfg.GreptimeEndpoint != "" {
		gr, err := record.NewGreptimeRecorder(cfg.GreptimeEndpoint, cfg.GreptimeDatabase, cfg.GreptimeTable, cfg.BatchSize)
		if err != nil {
			closeAll()
			return nil, err
		}
		rs = append(rs, gr)
	}
	switch len(rs) {
	case 0:
		return nil, nil
	case 1:
		return rs[0], nil
	}
	return record.NewMultiRecorder(rs...), nil
}
