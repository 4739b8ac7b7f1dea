package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

// sseEvent is one decoded server-sent event frame.
type sseEvent struct {
	kind string
	data map[string]any
}

// readSSE consumes the stream until EOF and returns every decoded frame.
func readSSE(t *testing.T, body *bufio.Scanner) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	for body.Scan() {
		line := body.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = map[string]any{}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &cur.data); err != nil {
				t.Fatalf("decode SSE data %q: %v", line, err)
			}
		case line == "":
			if cur.kind != "" || cur.data != nil {
				events = append(events, cur)
				cur = sseEvent{}
			}
		}
	}
	return events
}

func openStream(t *testing.T, p *skillServer, runID string) (*bufio.Scanner, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.url()+"/api/v1/runs/"+runID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("GET events: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	return bufio.NewScanner(resp.Body), func() {
		resp.Body.Close()
		cancel()
	}
}

// --- Live runs stream status, logs and a final complete event in order ---

func TestStreaming_LiveRunEventOrder(t *testing.T) {
	p := newSkillServer(t, &stubRunner{
		delay:     200 * time.Millisecond,
		lineDelay: 20 * time.Millisecond,
		logLines:  []string{"step one", "step two", "step three"},
	})
	p.addSkill(t, "chatty")

	ids := p.execAsync(t, `{"skill":"chatty","input":{"text":"go"}}`)
	scanner, done := openStream(t, p, ids[0])
	defer done()

	events := readSSE(t, scanner)
	if len(events) < 5 {
		t.Fatalf("got %d events, want >= 5 (status, logs, complete): %v", len(events), events)
	}

	if events[0].kind != "status" {
		t.Errorf("first event kind = %q, want status", events[0].kind)
	}

	// Sequence numbers are strictly increasing with no gaps in between.
	prev := int64(0)
	for i, ev := range events {
		seq := int64(ev.data["seq"].(float64))
		if i > 0 && seq != prev+1 {
			t.Errorf("event %d seq = %d, want %d", i, seq, prev+1)
		}
		prev = seq
		if ev.data["run_id"] != ids[0] {
			t.Errorf("event %d run_id = %v, want %s", i, ev.data["run_id"], ids[0])
		}
	}

	// All emitted log lines arrive in emission order.
	var lines []string
	for _, ev := range events {
		if ev.kind == "log" {
			payload, _ := ev.data["payload"].(map[string]any)
			lines = append(lines, payload["line"].(string))
		}
	}
	want := []string{"step one", "step two", "step three"}
	if len(lines) != len(want) {
		t.Fatalf("log lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("log line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	last := events[len(events)-1]
	if last.kind != "complete" {
		t.Fatalf("last event kind = %q, want complete", last.kind)
	}
	payload, _ := last.data["payload"].(map[string]any)
	if payload["status"] != "success" {
		t.Errorf("complete status = %v, want success", payload["status"])
	}
}

// --- Log events arrive while the run is still executing ---

func TestStreaming_IncrementalDelivery(t *testing.T) {
	p := newSkillServer(t, &stubRunner{
		delay:     100 * time.Millisecond,
		lineDelay: 300 * time.Millisecond,
		logLines:  []string{"early", "late"},
	})
	p.addSkill(t, "dripper")

	ids := p.execAsync(t, `{"skill":"dripper","input":{}}`)
	scanner, done := openStream(t, p, ids[0])
	defer done()

	// Read frames until the first log event, then check the run is still
	// running: the line delay keeps the runner busy long after emission.
	sawLog := false
	var cur sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.kind = strings.TrimPrefix(line, "event: ")
		case line == "":
			if cur.kind == "log" {
				sawLog = true
			}
			cur = sseEvent{}
		}
		if sawLog {
			break
		}
	}
	if !sawLog {
		t.Fatal("stream ended without a log event")
	}

	run := p.getRun(t, ids[0])
	if run["status"] != "running" {
		t.Errorf("status after first log = %v, want running", run["status"])
	}

	p.pollStatus(t, ids[0], "success", 5*time.Second)
}

// --- Streamed log lines agree with the persisted log history ---

func TestStreaming_MatchesPersistedLogs(t *testing.T) {
	p := newSkillServer(t, &stubRunner{
		delay:    100 * time.Millisecond,
		logLines: []string{"one", "two", "three"},
	})
	p.addSkill(t, "logger")

	ids := p.execAsync(t, `{"skill":"logger","input":{}}`)
	scanner, done := openStream(t, p, ids[0])
	defer done()

	var streamed []string
	for _, ev := range readSSE(t, scanner) {
		if ev.kind == "log" {
			payload, _ := ev.data["payload"].(map[string]any)
			streamed = append(streamed, payload["line"].(string))
		}
	}

	logs := p.getJSON(t, "/api/v1/runs/"+ids[0]+"/logs")
	lines, _ := logs["lines"].([]any)
	if len(lines) != len(streamed) {
		t.Fatalf("persisted %d lines, streamed %d", len(lines), len(streamed))
	}
	for i, l := range lines {
		entry, _ := l.(map[string]any)
		if entry["line"] != streamed[i] {
			t.Errorf("line %d: persisted %q, streamed %q", i, entry["line"], streamed[i])
		}
	}
}

// --- Subscribing to a finished run yields only the terminal snapshot ---

func TestStreaming_FinishedRunSnapshot(t *testing.T) {
	p := newSkillServer(t, nil)
	p.addSkill(t, "echo")

	results := p.execSync(t, `{"skill":"echo","input":{"text":"done"}}`)
	id := results[0]["id"].(string)

	scanner, done := openStream(t, p, id)
	defer done()

	events := readSSE(t, scanner)
	if len(events) != 1 {
		t.Fatalf("got %d events, want exactly 1 snapshot: %v", len(events), events)
	}
	if events[0].kind != "status" {
		t.Errorf("event kind = %q, want status", events[0].kind)
	}
	payload, _ := events[0].data["payload"].(map[string]any)
	if payload["status"] != "success" {
		t.Errorf("snapshot status = %v, want success", payload["status"])
	}
	if payload["snapshot"] != true {
		t.Errorf("snapshot flag = %v, want true", payload["snapshot"])
	}
}

// --- Events from concurrent runs do not bleed across streams ---

func TestStreaming_CrossRunIsolation(t *testing.T) {
	p := newSkillServer(t, &stubRunner{
		delay:     150 * time.Millisecond,
		lineDelay: 10 * time.Millisecond,
		logLines:  []string{"l1", "l2", "l3"},
	})
	p.addSkill(t, "alpha")
	p.addSkill(t, "beta")

	ids := p.execAsync(t, `{"strategy":"parallel","runs":[
		{"skill":"alpha","input":{}},
		{"skill":"beta","input":{}}
	]}`)

	scanner, done := openStream(t, p, ids[0])
	defer done()

	events := readSSE(t, scanner)
	if len(events) == 0 {
		t.Fatal("no events received")
	}
	for i, ev := range events {
		if ev.data["run_id"] != ids[0] {
			t.Errorf("event %d carries run_id %v, want %s", i, ev.data["run_id"], ids[0])
		}
	}

	p.pollStatus(t, ids[1], "success", 5*time.Second)
}
