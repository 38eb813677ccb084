package events

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"lead_distribution_backend/platform/logger"

	"github.com/google/uuid"
)

func TestAuditLoggerWritesEveryName(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("production", &buf)
	bus := NewInMemoryBus(log)
	SubscribeAll(bus, Names, AuditLogger(log))

	leadID := uuid.New()
	base := NewBaseEvent()
	if err := bus.PublishSync(context.Background(), LeadCompleted{BaseEvent: base, LeadID: leadID}); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "matching.lead.completed") || !strings.Contains(out, leadID.String()) {
		t.Fatalf("audit line missing event data: %s", out)
	}
	if !strings.Contains(out, `"event_id":"`+base.ID.String()+`"`) {
		t.Fatalf("audit line missing event id: %s", out)
	}
}

func TestNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, name := range Names {
		if seen[name] {
			t.Fatalf("duplicate event name %q", name)
		}
		seen[name] = true
	}
}
