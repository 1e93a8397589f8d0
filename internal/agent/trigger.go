package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shrimp/shrimp/pkg/models"
)

const resultPreviewLen = 500

var finalResultTag = regexp.MustCompile(`(?is)<final_result>(.*?)</final_result>`)

const triggerReminder = `The tools above are available to you autonomously: use them as needed without asking for permission. When you have a definitive answer, wrap it in <final_result>...</final_result> so it can be extracted programmatically. If there is no single final answer, omit the tag.`

// TriggerRunInput is RunTrigger's request shape.
type TriggerRunInput struct {
	Message string
	Model   string
	Trigger models.TriggerKind
	Payload string
}

// TriggerRunResult is RunTrigger's response shape.
type TriggerRunResult struct {
	Run            *models.TriggerRun
	ConversationID string
	FinalResult    string
	ResultPreview  string
}

// RunTrigger wraps RunTurn to produce a one-shot, non-streaming invocation
// with a machine-readable final result extracted from the assistant's reply.
func (o *Orchestrator) RunTrigger(ctx context.Context, in TriggerRunInput) (*TriggerRunResult, error) {
	run, err := o.Store.CreateTriggerRun(ctx, in.Trigger, in.Message, in.Model, in.Payload)
	if err != nil {
		return nil, err
	}

	synthetic := synthesizeTriggerMessage(in.Message, in.Payload)

	turnResult, err := o.RunTurn(ctx, RunTurnInput{Message: synthetic, Model: in.Model}, nil)
	if err != nil {
		if _, completeErr := o.Store.CompleteTriggerRun(ctx, run.ID, false, "", "", err.Error()); completeErr != nil {
			return nil, completeErr
		}
		return nil, err
	}

	fullText := strings.Join(turnResult.Bubbles, "\n\n")
	finalResult := extractFinalResult(fullText)

	if err := o.Store.SetTriggerRunConversationID(ctx, run.ID, turnResult.ConversationID); err != nil {
		return nil, err
	}

	outputJSON, err := json.Marshal(struct {
		Bubbles        []string `json:"bubbles"`
		ConversationID string   `json:"conversationId"`
		FinalResult    string   `json:"finalResult"`
	}{Bubbles: turnResult.Bubbles, ConversationID: turnResult.ConversationID, FinalResult: finalResult})
	if err != nil {
		return nil, err
	}
	reloaded, err := o.Store.CompleteTriggerRun(ctx, run.ID, true, string(outputJSON), finalResult, "")
	if err != nil {
		return nil, err
	}

	return &TriggerRunResult{
		Run:            reloaded,
		ConversationID: turnResult.ConversationID,
		FinalResult:    finalResult,
		ResultPreview:  truncate(fullText, resultPreviewLen),
	}, nil
}

func synthesizeTriggerMessage(instruction, payload string) string {
	var b strings.Builder
	b.WriteString(instruction)
	if payload != "" {
		b.WriteString("\n\n")
		b.WriteString(payload)
	}
	b.WriteString("\n\n")
	b.WriteString(triggerReminder)
	return b.String()
}

func extractFinalResult(fullText string) string {
	match := finalResultTag.FindStringSubmatch(fullText)
	if match == nil {
		return ""
	}
	return compactPreview(match[1], len(match[1]))
}

