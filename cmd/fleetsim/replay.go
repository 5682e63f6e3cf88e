package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"fleetsim/internal/engine"
	"fleetsim/internal/record"
)

var (
	replayInput     string
	replayBroker    string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded telemetry file",
	Long:  "replay re-publishes samples from a JSONL recording to an MQTT broker, keeping their relative timing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		var pub record.Publisher
		if replayPrintOnly {
			pub = stdoutPublisher{out: cmd.OutOrStdout()}
		} else {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client, err := engine.PahoDialer(ctx, engine.ClientConfig{
				URL:            "mqtt://" + replayBroker,
				ClientID:       fmt.Sprintf("fleetsim-replay-%d", time.Now().UnixMilli()),
				ConnectTimeout: 10 * time.Second,
			})
			if err != nil {
				return err
			}
			defer client.Disconnect()
			pub = clientPublisher{client: client}
		}
		n, err := record.ReplayFile(replayInput, pub, replaySpeed)
		fmt.Fprintf(cmd.ErrOrStderr(), "replayed %d samples\n", n)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to JSONL recording")
	replayCmd.Flags().StringVar(&replayBroker, "broker", "localhost:1883", "Target broker host:port")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 disables delays)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print topic and payload instead of publishing")
	replayCmd.MarkFlagRequired("input")
}

type clientPublisher struct {
	client engine.Client
}

func (p clientPublisher) Publish(topic string, payload []byte) error {
	return p.client.Publish(topic, 0, false, payload)
}

type stdoutPublisher struct {
	out io.Writer
}

func (p stdoutPublisher) Publish(topic string, payload []byte) error {
	_, err := fmt.Fprintf(p.out, "%s %s\n", topic, payload)
	return err
}
