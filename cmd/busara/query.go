package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/busara/internal/config"
	goutils "github.com/jkaninda/go-utils"
)

var (
	queryConfigPath string
	queryMessage    string
	queryTimeout    int
	queryDebug      bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one agent turn and print the answer",
	Long: `Run a single plan/execute/replan turn against the configured backend
and print the final answer to stdout.

Examples:
  busara query -m "What time is it in Tokyo?"
  busara query -m "Fetch https://example.com and summarize it in 3 bullets"`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryConfigPath, "config", "", "path to config file (or BUSARA_CONFIG env)")
	queryCmd.Flags().StringVarP(&queryMessage, "message", "m", "", "message to send (required)")
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 300, "timeout in seconds")
	queryCmd.Flags().BoolVar(&queryDebug, "debug", false, "enable debug logging")

	_ = queryCmd.MarkFlagRequired("message")
}

func runQuery(_ *cobra.Command, _ []string) error {
	if queryMessage == "" {
		return fmt.Errorf("message is required: use -m flag")
	}

	logger := newLogger(queryDebug)

	cfg, err := config.Load(goutils.Env("BUSARA_CONFIG", queryConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(queryTimeout)*time.Second)
	defer cancel()

	answer, err := sc.Engine.Run(ctx, queryMessage)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}
