package transcript

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileRecorderAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "exchanges.jsonl")
	r, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}

	if err := r.AppendExchange("s1", "hello", "hi there"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}
	if err := r.AppendExchange("s1", "how are you?", "doing well\nthanks"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}

	got, err := r.LoadExchanges()
	if err != nil {
		t.Fatalf("LoadExchanges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d exchanges, want 2", len(got))
	}
	if got[0].SessionID != "s1" || got[0].UserMessage != "hello" || got[0].AssistantResponse != "hi there" {
		t.Fatalf("first exchange = %+v", got[0])
	}
	if got[1].AssistantResponse != "doing well\nthanks" {
		t.Fatalf("newline in response not preserved: %+v", got[1])
	}
	if got[0].Timestamp.IsZero() || got[1].Timestamp.Before(got[0].Timestamp) {
		t.Fatalf("timestamps out of order: %v then %v", got[0].Timestamp, got[1].Timestamp)
	}
}

func TestFileRecorderEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.jsonl")
	r, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}
	got, err := r.LoadExchanges()
	if err != nil {
		t.Fatalf("LoadExchanges: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("loaded %d exchanges from empty file", len(got))
	}
}

func TestFileRecorderSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.jsonl")
	r, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}
	if err := r.AppendExchange("s1", "first", "ok"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if err := r.AppendExchange("s1", "second", "ok"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}

	got, err := r.LoadExchanges()
	if err != nil {
		t.Fatalf("LoadExchanges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d exchanges, want the 2 valid ones", len(got))
	}
	if got[0].UserMessage != "first" || got[1].UserMessage != "second" {
		t.Fatalf("exchanges = %+v", got)
	}
}
