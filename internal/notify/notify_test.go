package notify

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewRequiresBus(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New should reject options without a bus")
	}
}

func TestNotificationPayloadShape(t *testing.T) {
	payload, err := json.Marshal(Notification{
		ID:        "n1",
		Severity:  SeverityError,
		Title:     "Backend unreachable",
		Message:   "pvr.hts: no route to host",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["severity"] != "error" {
		t.Errorf("severity = %q, want error", decoded["severity"])
	}
	if decoded["timestamp"] != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp = %q, want RFC3339", decoded["timestamp"])
	}
}
