package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shrimp/shrimp/internal/agent"
	"github.com/shrimp/shrimp/pkg/models"
)

func buildTriggerCmd(configPath *string) *cobra.Command {
	var (
		message string
		model   string
		payload string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run one non-streaming trigger invocation and print its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrigger(cmd.Context(), *configPath, message, model, payload)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "instruction to run (required)")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload appended to the instruction")
	cmd.MarkFlagRequired("message")

	return cmd
}

func runTrigger(ctx context.Context, configPath, message, model, payload string) error {
	rt, err := buildRuntime(configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.orchestrator.RunTrigger(ctx, agent.TriggerRunInput{
		Message: message,
		Model:   model,
		Trigger: models.TriggerManual,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"conversationId": result.ConversationID,
		"finalResult":    result.FinalResult,
		"resultPreview":  result.ResultPreview,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
