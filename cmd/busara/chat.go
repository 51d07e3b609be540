package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/busara/internal/config"
	goutils "github.com/jkaninda/go-utils"
)

var (
	chatConfigPath string
	chatDebug      bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive session on stdin. Each line runs one full agent turn;
episodic memory carries context between turns. Exit with "exit", "quit", or Ctrl-D.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatConfigPath, "config", "", "path to config file (or BUSARA_CONFIG env)")
	chatCmd.Flags().BoolVar(&chatDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(chatCmd)
}

func runChat(_ *cobra.Command, _ []string) error {
	logger := newLogger(chatDebug)

	cfg, err := config.Load(goutils.Env("BUSARA_CONFIG", chatConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("busara chat (exit with \"exit\" or Ctrl-D)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		answer, err := sc.Engine.Run(ctx, line)
		if err != nil {
			// Only context cancellation surfaces here.
			return err
		}
		fmt.Println(answer)
		fmt.Println()
	}

	return scanner.Err()
}
