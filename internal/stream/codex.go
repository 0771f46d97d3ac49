package stream

import (
	"encoding/json"
	"fmt"
)

// ParseCodexLine parses one record of Codex CLI's JSONL protocol
// (`codex exec --json`). Records nest the payload under "msg" with a
// "type" discriminator; command executions use call_id/command fields
// where Claude uses id/name/input.
func ParseCodexLine(line []byte) (Parsed, error) {
	var record map[string]any
	if err := json.Unmarshal(line, &record); err != nil {
		return Parsed{}, fmt.Errorf("malformed codex record: %w", err)
	}

	msg, ok := record["msg"].(map[string]any)
	if !ok {
		return Parsed{}, nil
	}

	msgType, _ := msg["type"].(string)
	switch msgType {
	case "agent_message":
		text, _ := msg["message"].(string)
		if text == "" {
			return Parsed{}, nil
		}
		return Parsed{Events: []Event{{
			Kind: KindTextDelta,
			Text: truncate(text, textPreviewLimit),
		}}}, nil

	case "agent_message_delta":
		delta, _ := msg["delta"].(string)
		if delta == "" {
			return Parsed{}, nil
		}
		return Parsed{Events: []Event{{
			Kind: KindTextDelta,
			Text: truncate(delta, textPreviewLimit),
		}}}, nil

	case "exec_command_begin":
		return Parsed{Events: []Event{{
			Kind:            KindToolCallStart,
			ToolName:        "exec",
			CorrelationID:   correlationID(msg),
			ArgumentPreview: argumentPreview(msg),
		}}}, nil

	case "exec_command_end":
		return Parsed{Events: []Event{{
			Kind:          KindToolCallEnd,
			CorrelationID: correlationID(msg),
		}}}, nil

	case "mcp_tool_call_begin":
		return Parsed{Events: []Event{{
			Kind:            KindToolCallStart,
			ToolName:        toolName(msg),
			CorrelationID:   correlationID(msg),
			ArgumentPreview: argumentPreview(msg),
		}}}, nil

	case "mcp_tool_call_end":
		return Parsed{Events: []Event{{
			Kind:          KindToolCallEnd,
			CorrelationID: correlationID(msg),
		}}}, nil

	case "task_complete":
		final, _ := msg["last_agent_message"].(string)
		return Parsed{
			Events: []Event{{
				Kind: KindTurnSummary,
				Text: truncate(final, textPreviewLimit),
			}},
			Final: final,
		}, nil

	default:
		// task_started, token_count and friends carry no progress.
		return Parsed{}, nil
	}
}
