package stream

import (
	"testing"
)

func collectEvents(t *testing.T, parse ParseLineFunc, chunks ...string) ([]Event, *Normalizer) {
	t.Helper()

	var events []Event
	n := NewNormalizer(parse, func(ev Event) {
		events = append(events, ev)
	})
	for _, chunk := range chunks {
		if _, err := n.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	n.Flush()
	return events, n
}

func TestNormalizerBuffersPartialLines(t *testing.T) {
	// One record delivered across three chunks must produce exactly one event.
	record := `{"type":"assistant","message":{"content":[{"type":"text","text":"reading the diff"}]}}` + "\n"

	events, _ := collectEvents(t, ParseClaudeLine,
		record[:20], record[20:45], record[45:])

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != KindTextDelta || events[0].Text != "reading the diff" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestNormalizerSkipsMalformedLines(t *testing.T) {
	events, _ := collectEvents(t, ParseClaudeLine,
		"not json at all\n",
		`{"type":"assistant","message":{"content":[{"type":"text","text":"still going"}]}}`+"\n",
	)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (malformed line skipped, stream not aborted)", len(events))
	}
}

func TestNormalizerDropsUnknownRecords(t *testing.T) {
	events, _ := collectEvents(t, ParseClaudeLine,
		`{"type":"system","subtype":"init","session_id":"abc"}`+"\n")

	if len(events) != 0 {
		t.Errorf("unknown record produced events: %+v", events)
	}
}

func TestNormalizerFlushHandlesTrailingPartialLine(t *testing.T) {
	// Final line with no trailing newline is still processed at Flush.
	events, _ := collectEvents(t, ParseClaudeLine,
		`{"type":"result","subtype":"success","result":"{\"level\":1}"}`)

	if len(events) != 1 || events[0].Kind != KindTurnSummary {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestClaudeToolCallMapping(t *testing.T) {
	start := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"toolu_01","name":"Bash","input":{"command":"git diff --stat"}}]}}` + "\n"
	end := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"toolu_01","content":"ok"}]}}` + "\n"

	events, _ := collectEvents(t, ParseClaudeLine, start, end)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	if events[0].Kind != KindToolCallStart {
		t.Errorf("first event kind = %s", events[0].Kind)
	}
	if events[0].ToolName != "Bash" {
		t.Errorf("ToolName = %q, want Bash", events[0].ToolName)
	}
	if events[0].CorrelationID != "toolu_01" {
		t.Errorf("CorrelationID = %q", events[0].CorrelationID)
	}
	if events[0].ArgumentPreview != "git diff --stat" {
		t.Errorf("ArgumentPreview = %q", events[0].ArgumentPreview)
	}

	// The end record names its correlation field differently (tool_use_id);
	// both must map to the same canonical id.
	if events[1].Kind != KindToolCallEnd || events[1].CorrelationID != "toolu_01" {
		t.Errorf("unexpected end event: %+v", events[1])
	}
}

func TestClaudeFinalAnswerAccumulation(t *testing.T) {
	_, n := collectEvents(t, ParseClaudeLine,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"working"}]}}`+"\n",
		`{"type":"result","subtype":"success","result":"{\"level\":2,\"suggestions\":[]}"}`+"\n")

	if got := n.FinalText(); got != `{"level":2,"suggestions":[]}` {
		t.Errorf("FinalText() = %q", got)
	}
}

func TestCodexMapping(t *testing.T) {
	events, n := collectEvents(t, ParseCodexLine,
		`{"id":"0","msg":{"type":"task_started"}}`+"\n",
		`{"id":"1","msg":{"type":"exec_command_begin","call_id":"c1","command":["bash","-lc","rg TODO"]}}`+"\n",
		`{"id":"2","msg":{"type":"exec_command_end","call_id":"c1","exit_code":0}}`+"\n",
		`{"id":"3","msg":{"type":"agent_message","message":"two findings so far"}}`+"\n",
		`{"id":"4","msg":{"type":"task_complete","last_agent_message":"{\"level\":3}"}}`+"\n")

	kinds := []EventKind{KindToolCallStart, KindToolCallEnd, KindTextDelta, KindTurnSummary}
	if len(events) != len(kinds) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(kinds), events)
	}
	for i, want := range kinds {
		if events[i].Kind != want {
			t.Errorf("event %d kind = %s, want %s", i, events[i].Kind, want)
		}
	}

	// Codex names the correlation field call_id.
	if events[0].CorrelationID != "c1" || events[1].CorrelationID != "c1" {
		t.Errorf("correlation ids: %q / %q", events[0].CorrelationID, events[1].CorrelationID)
	}
	if events[0].ArgumentPreview != "bash -lc rg TODO" {
		t.Errorf("ArgumentPreview = %q", events[0].ArgumentPreview)
	}

	if got := n.FinalText(); got != `{"level":3}` {
		t.Errorf("FinalText() = %q", got)
	}
}

func TestArgumentPreviewHeuristics(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"command wins", map[string]any{"command": "ls -la", "file_path": "x.go"}, "ls -la"},
		{"path fallback", map[string]any{"file_path": "internal/a.go", "limit": float64(5)}, "internal/a.go"},
		{"first scalar", map[string]any{"zeta": "last", "alpha": "first"}, "first"},
		{"key names", map[string]any{"nested": map[string]any{"x": 1}, "other": []any{}}, "nested, other"},
		{"empty", map[string]any{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := argumentPreview(tt.args); got != tt.want {
				t.Errorf("argumentPreview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextPreviewTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "narration "
	}
	parsed, err := ParseClaudeLine([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"` + long + `"}]}}`))
	if err != nil {
		t.Fatalf("ParseClaudeLine: %v", err)
	}
	if len(parsed.Events) != 1 {
		t.Fatalf("got %d events", len(parsed.Events))
	}
	if got := len([]rune(parsed.Events[0].Text)); got > textPreviewLimit+1 {
		t.Errorf("preview length %d exceeds limit", got)
	}
}
