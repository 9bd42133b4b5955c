package messaging

import (
	"testing"
)

func TestDecodeChangeEvent(t *testing.T) {
	event, err := DecodeChangeEvent([]byte(`{"event_id":"e1","resource_id":"a","resource_type":"todo","operation":"deleted","version":4,"is_deleted":true}`))
	if err != nil {
		t.Fatalf("DecodeChangeEvent error: %v", err)
	}
	if event.ResourceID != "a" || event.Version != 4 || !event.IsDeleted {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := DecodeChangeEvent([]byte(`{"version":1}`)); err == nil {
		t.Fatal("expected error for missing resource_id")
	}
	if _, err := DecodeChangeEvent([]byte(`not-json`)); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}
