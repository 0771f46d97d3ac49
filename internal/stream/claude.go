package stream

import (
	"encoding/json"
	"fmt"
)

// ParseClaudeLine parses one record of Claude Code's stream-json protocol
// (`--output-format stream-json`). Assistant records carry narration text
// and tool_use blocks; user records carry tool_result blocks; the result
// record wraps the true final answer.
func ParseClaudeLine(line []byte) (Parsed, error) {
	var record map[string]any
	if err := json.Unmarshal(line, &record); err != nil {
		return Parsed{}, fmt.Errorf("malformed stream-json record: %w", err)
	}

	recordType, _ := record["type"].(string)
	switch recordType {
	case "assistant":
		return Parsed{Events: claudeMessageEvents(record, false)}, nil
	case "user":
		return Parsed{Events: claudeMessageEvents(record, true)}, nil
	case "result":
		final, _ := record["result"].(string)
		return Parsed{
			Events: []Event{{
				Kind: KindTurnSummary,
				Text: truncate(final, textPreviewLimit),
			}},
			Final: final,
		}, nil
	default:
		// system/init and other bookkeeping records carry no progress.
		return Parsed{}, nil
	}
}

// claudeMessageEvents maps the content blocks of an assistant or user
// record to canonical events.
func claudeMessageEvents(record map[string]any, resultSide bool) []Event {
	message, _ := record["message"].(map[string]any)
	content, _ := message["content"].([]any)

	var events []Event
	for _, raw := range content {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		blockType, _ := block["type"].(string)
		switch {
		case blockType == "text" && !resultSide:
			text, _ := block["text"].(string)
			if text == "" {
				continue
			}
			events = append(events, Event{
				Kind: KindTextDelta,
				Text: truncate(text, textPreviewLimit),
			})

		case blockType == "tool_use":
			args, _ := block["input"].(map[string]any)
			events = append(events, Event{
				Kind:            KindToolCallStart,
				ToolName:        toolName(block),
				CorrelationID:   correlationID(block),
				ArgumentPreview: argumentPreview(args),
			})

		case blockType == "tool_result":
			events = append(events, Event{
				Kind:          KindToolCallEnd,
				CorrelationID: correlationID(block),
			})
		}
	}
	return events
}
