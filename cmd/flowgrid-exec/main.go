// Package main provides flowgrid-exec, a one-shot runner for a workflow
// definition file. Useful for trying out definitions without the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/flowgrid/flowgrid/pkg/cmd"
	"github.com/flowgrid/flowgrid/pkg/engine"
	"github.com/flowgrid/flowgrid/pkg/kv"
	"github.com/flowgrid/flowgrid/pkg/log"
	"github.com/flowgrid/flowgrid/pkg/models"
	storememory "github.com/flowgrid/flowgrid/pkg/store/memory"
	"github.com/flowgrid/flowgrid/pkg/workflow"
)

// singleWorkflow satisfies the engine's workflow provider for one definition.
type singleWorkflow struct {
	workflow *models.Workflow
}

func (s singleWorkflow) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	if id != s.workflow.ID {
		return nil, fmt.Errorf("unknown workflow %s", id)
	}

	return s.workflow, nil
}

func main() {
	command := &cli.Command{
		Name:      "flowgrid-exec",
		Usage:     "Execute a workflow definition file once and print the result",
		ArgsUsage: "<definition.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "payload",
				Usage:   "Trigger payload as a JSON object",
				Value:   "{}",
				Sources: cli.EnvVars("PAYLOAD"),
			},
			&cli.StringFlag{
				Name:    "trigger-node",
				Usage:   "Trigger node id to enter through (first entry point when empty)",
				Sources: cli.EnvVars("TRIGGER_NODE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	if command.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one definition file argument")
	}

	log.Setup(command.String("log-level"))
	logger := log.WithModule("flowgrid-exec")

	data, err := os.ReadFile(command.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read definition: %w", err)
	}

	wf, err := workflow.Parse(data)
	if err != nil {
		return err
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(command.String("payload")), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	entryID := command.String("trigger-node")
	if entryID == "" {
		entryID = wf.Triggers[0]
	}

	entry := wf.NodeByID(entryID)
	if entry == nil {
		return fmt.Errorf("trigger node %s not found", entryID)
	}

	registry := cmd.NewRegistry(logger, kv.NewMemoryStore())
	eng := engine.New(logger, storememory.NewStore(), registry, singleWorkflow{workflow: wf})

	state, err := eng.Run(ctx, wf, models.TriggerInfo{
		Type:    models.TriggerType(entry.Subtype),
		NodeID:  entryID,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(encoded))

	if state.Status == models.ExecutionStatusError {
		os.Exit(1)
	}

	return nil
}
