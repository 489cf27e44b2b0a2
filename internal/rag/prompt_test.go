package rag

import (
	"strings"
	"testing"

	"document-qa/internal/models"
)

func TestBuildContext(t *testing.T) {
	got := BuildContext([]models.Entry{
		{Filename: "pump.pdf", PageNumber: 4, Content: "Max pressure is 6 bar."},
		{Filename: "valve.pdf", PageNumber: 1, Content: "Valves are brass."},
	})
	want := "Source: pump.pdf | Page: 4\nMax pressure is 6 bar.\n\nSource: valve.pdf | Page: 1\nValves are brass."
	if got != want {
		t.Errorf("BuildContext =\n%q\nwant\n%q", got, want)
	}
	if BuildContext(nil) != "" {
		t.Errorf("BuildContext(nil) not empty")
	}
}

func turns(n int) []models.Turn {
	// newest first, as the history store returns them
	out := make([]models.Turn, n)
	for i := range out {
		k := n - i
		out[i] = models.Turn{Question: "q" + string(rune('0'+k)), Answer: "a" + string(rune('0'+k))}
	}
	return out
}

func TestTrimHistory(t *testing.T) {
	got := TrimHistory(turns(5), 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"q3", "q4", "q5"} {
		if got[i].Question != want {
			t.Errorf("turn %d = %s, want %s", i, got[i].Question, want)
		}
	}
	if got := TrimHistory(turns(2), 10); len(got) != 2 || got[0].Question != "q1" {
		t.Errorf("short history = %+v", got)
	}
	if got := TrimHistory(turns(2), 0); len(got) != 0 {
		t.Errorf("max 0 kept %d turns", len(got))
	}
}

func TestBuildMessages_Order(t *testing.T) {
	entries := []models.Entry{{Filename: "f.pdf", PageNumber: 2, Content: "ctx"}}
	msgs := BuildMessages("now?", entries, turns(2), nil, 10)

	roles := make([]models.Role, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	want := []models.Role{models.RoleSystem, models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant, models.RoleUser}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
	if msgs[1].Content != "q1" || msgs[2].Content != "a1" || msgs[3].Content != "q2" {
		t.Errorf("history not chronological: %+v", msgs[1:5])
	}
	if msgs[len(msgs)-1].Content != "now?" {
		t.Errorf("last message = %q, want the question", msgs[len(msgs)-1].Content)
	}
	sys := msgs[0].Content
	if !strings.Contains(sys, "Source: f.pdf | Page: 2\nctx") {
		t.Errorf("system prompt lacks context block: %q", sys)
	}
	if strings.Contains(sys, "Known facts") {
		t.Errorf("memory block present without facts")
	}
}

func TestBuildMessages_MemoryBlock(t *testing.T) {
	msgs := BuildMessages("q", nil, nil, []string{"My name is Ana", "I work nights"}, 10)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !strings.HasSuffix(msgs[0].Content, "Known facts about the user:\n- My name is Ana\n- I work nights") {
		t.Errorf("memory block missing or malformed: %q", msgs[0].Content)
	}
}
