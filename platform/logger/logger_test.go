package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestDatabaseErrorCarriesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, JobIDKey, "job-9")
	log.WithContext(ctx).DatabaseError("expire quotes", errors.New("connection reset"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	want := map[string]string{
		"msg":        "database_error",
		"level":      "ERROR",
		"operation":  "expire quotes",
		"error":      "connection reset",
		"request_id": "req-1",
		"job_id":     "job-9",
	}
	for key, value := range want {
		if line[key] != value {
			t.Errorf("%s = %v, want %q", key, line[key], value)
		}
	}
}

func TestDevelopmentUsesTextHandler(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("development", &buf).Debug("visible")
	if !bytes.Contains(buf.Bytes(), []byte("msg=visible")) {
		t.Fatalf("expected debug text line, got %q", buf.String())
	}
}
