package authority

import (
	"testing"
)

func TestComponentAuthorityMap_GetResponsibleComponents(t *testing.T) {
	cam := NewComponentAuthorityMap()

	// Test exact match
	components := cam.GetResponsibleComponents("queue_depth")
	if len(components) == 0 {
		t.Fatal("Expected components for queue_depth")
	}
	if components[0] != "queue_worker" {
		t.Errorf("Expected 'queue_worker', got '%s'", components[0])
	}

	// Test prefix match for qualified metrics
	components = cam.GetResponsibleComponents("failure_rate.whatsapp")
	if !contains(components, "message_sender") {
		t.Errorf("Expected 'message_sender' in components, got %v", components)
	}

	// Test non-existent metric
	components = cam.GetResponsibleComponents("non_existent_metric")
	if len(components) != 0 {
		t.Errorf("Expected empty slice for non-existent metric, got %v", components)
	}
}

func TestComponentAuthorityMap_PrimaryComponent(t *testing.T) {
	cam := NewComponentAuthorityMap()

	primary, ok := cam.PrimaryComponent("failure_rate")
	if !ok {
		t.Fatal("Expected a primary component for failure_rate")
	}
	if primary != "message_sender" {
		t.Errorf("Expected 'message_sender', got '%s'", primary)
	}

	if _, ok := cam.PrimaryComponent("unknown"); ok {
		t.Error("Expected no primary component for unknown metric")
	}
}

func TestComponentAuthorityMap_GetAllComponents(t *testing.T) {
	cam := NewComponentAuthorityMap()

	components := cam.GetAllComponents()
	if len(components) == 0 {
		t.Fatal("Expected at least some components")
	}

	expected := []string{"api_gateway", "message_sender", "webhook_processor", "queue_worker", "cache"}
	for _, e := range expected {
		if !contains(components, e) {
			t.Errorf("Expected component '%s' not found in list", e)
		}
	}
}

func TestComponentAuthorityMap_GetComponentMetadata(t *testing.T) {
	cam := NewComponentAuthorityMap()

	metadata, exists := cam.GetComponentMetadata("message_sender")
	if !exists {
		t.Fatal("Expected metadata for message_sender")
	}

	if metadata.Name != "message_sender" {
		t.Errorf("Expected name 'message_sender', got '%s'", metadata.Name)
	}

	if metadata.Team == "" {
		t.Error("Expected non-empty team")
	}

	_, exists = cam.GetComponentMetadata("non-existent-component")
	if exists {
		t.Error("Expected metadata to not exist for non-existent component")
	}
}

func TestComponentAuthorityMap_KnownComponentAndAuthority(t *testing.T) {
	cam := NewComponentAuthorityMap()

	if !cam.KnownComponent("cache") {
		t.Error("Expected cache to be a known component")
	}
	if cam.KnownComponent("mainframe") {
		t.Error("Expected mainframe to be unknown")
	}

	if !cam.ValidateAuthority("webhook_processor", "webhook_latency_ms") {
		t.Error("Expected webhook_processor to own webhook_latency_ms")
	}
	if cam.ValidateAuthority("cache", "webhook_latency_ms") {
		t.Error("Expected cache to NOT own webhook_latency_ms")
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
