package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fleetsim/internal/backbone"
	"fleetsim/internal/config"
	"fleetsim/internal/logging"
	"fleetsim/internal/topics"
)

var ctlTimeout time.Duration

var ctlCmd = &cobra.Command{
	Use:       "ctl {start|stop|pause|resume} <profileId>",
	Short:     "Send a remote command over the control plane",
	Long:      "ctl publishes a simulation command on the control plane and waits for the correlated response.",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{topics.ActionStart, topics.ActionStop, topics.ActionPause, topics.ActionResume},
	RunE: func(cmd *cobra.Command, args []string) error {
		action, id := args[0], args[1]
		switch action {
		case topics.ActionStart, topics.ActionStop, topics.ActionPause, topics.ActionResume:
		default:
			return fmt.Errorf("unknown action %q", action)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
		defer cancel()
		bb, err := passiveBackbone(ctx, cfg, "ctl")
		if err != nil {
			return err
		}
		defer bb.Close()

		resp, err := bb.Request(ctx, action, id)
		if err != nil {
			return err
		}
		if !resp.Success {
			msg := "unknown error"
			if resp.Error != nil {
				msg = *resp.Error
			}
			return fmt.Errorf("%s %s failed: %s", action, id, msg)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok\n", action, id)
		return nil
	},
}

func init() {
	ctlCmd.Flags().DurationVar(&ctlTimeout, "timeout", 15*time.Second, "How long to wait for the response")
}

// passiveBackbone connects to the system broker without heartbeat or will.
func passiveBackbone(ctx context.Context, cfg *config.Config, role string) (*backbone.Service, error) {
	bb := backbone.New(backbone.Config{
		Host:     cfg.Backbone.Host,
		Port:     cfg.Backbone.Port,
		TLS:      cfg.Backbone.TLS,
		Username: cfg.Backbone.Username,
		Password: cfg.Backbone.Password,
		ClientID: fmt.Sprintf("fleetsim-%s-%s", role, uuid.NewString()[:8]),
		Topics:   topics.New(cfg.TopicPrefix),
		Logger:   logging.Nop(),
		Passive:  true,
	})
	if err := bb.Connect(ctx); err != nil {
		return nil, err
	}
	return bb, nil
}
