package events

import (
	"context"
	"testing"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	err := pub.PublishChanged(context.Background(), &ConfigChangedEvent{Kind: KindTemplate, ID: "t1", Revision: 1})
	if err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *ConfigChangedEvent

	pub := NewCallbackPublisher(func(_ context.Context, event *ConfigChangedEvent) error {
		captured = event
		return nil
	})

	err := pub.PublishChanged(context.Background(), &ConfigChangedEvent{
		Kind:          KindMapping,
		ID:            "Halo",
		ChangedFields: []string{"PrimaryContact"},
		Revision:      5,
		Timestamp:     "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
	if captured == nil {
		t.Fatal("events:publisher_test - expected callback to be called")
	}
	if captured.Kind != KindMapping || captured.Revision != 5 {
		t.Errorf("events:publisher_test - captured = %+v", captured)
	}
}
