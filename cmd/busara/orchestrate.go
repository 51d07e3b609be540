package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/busara/internal/config"
	"github.com/jkaninda/busara/internal/orchestrator"
	goutils "github.com/jkaninda/go-utils"
)

var (
	orchConfigPath string
	orchTemplate   string
	orchGoal       string
	orchInputs     []string
	orchTimeout    int
	orchList       bool
	orchDebug      bool
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run a multi-role routing template",
	Long: `Expand a routing template into a dependency-aware set of work items and
execute them in bounded-parallel waves.

Examples:
  busara orchestrate -g "Design a rate limiter for the API"
  busara orchestrate -t design_review -g "Design a rate limiter for the API"
  busara orchestrate -g "Summarize the report" -i audience=engineers -i tone=brief
  busara orchestrate --list`,
	RunE: runOrchestrate,
}

func init() {
	orchestrateCmd.Flags().StringVar(&orchConfigPath, "config", "", "path to config file (or BUSARA_CONFIG env)")
	orchestrateCmd.Flags().StringVarP(&orchTemplate, "template", "t", orchestrator.TemplateSingle, "routing template name")
	orchestrateCmd.Flags().StringVarP(&orchGoal, "goal", "g", "", "goal to orchestrate (required unless --list)")
	orchestrateCmd.Flags().StringArrayVarP(&orchInputs, "input", "i", nil, "context input as key=value (repeatable)")
	orchestrateCmd.Flags().IntVar(&orchTimeout, "timeout", 600, "timeout in seconds")
	orchestrateCmd.Flags().BoolVar(&orchList, "list", false, "list routing templates and exit")
	orchestrateCmd.Flags().BoolVar(&orchDebug, "debug", false, "enable debug logging")
}

func runOrchestrate(_ *cobra.Command, _ []string) error {
	if orchList {
		for _, name := range orchestrator.Templates() {
			plan, err := orchestrator.DescribeTemplate(name)
			if err != nil {
				continue
			}
			fmt.Println(plan)
			fmt.Println()
		}
		return nil
	}
	if orchGoal == "" {
		return fmt.Errorf("goal is required: use -g flag")
	}

	logger := newLogger(orchDebug)

	cfg, err := config.Load(goutils.Env("BUSARA_CONFIG", orchConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(orchTimeout)*time.Second)
	defer cancel()

	output, err := sc.Orch.RunTemplate(ctx, orchTemplate, orchGoal, parseInputs(orchInputs))
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}

// parseInputs converts repeated key=value flags into the template context map.
func parseInputs(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 && parts[0] != "" {
			inputs[parts[0]] = parts[1]
		}
	}
	return inputs
}
