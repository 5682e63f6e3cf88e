package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fleetsim/internal/monitor"
	"fleetsim/internal/topics"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch simulations in the terminal",
	Long:  "monitor subscribes to control-plane status and events and renders them as a live table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("monitor needs an interactive terminal")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		bb, err := passiveBackbone(ctx, cfg, "monitor")
		cancel()
		if err != nil {
			return err
		}
		defer bb.Close()

		ns := topics.New(cfg.TopicPrefix)
		mon := monitor.New(ns)
		for _, topic := range []string{ns.StatusWildcard(), ns.EventWildcard()} {
			if err := bb.Subscribe(topic, mon.Handle); err != nil {
				return err
			}
		}
		return mon.Run()
	},
}
