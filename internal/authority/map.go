package authority

import (
	"sort"
	"strings"
)

// ComponentAuthorityMap records which platform components own which metrics
type ComponentAuthorityMap struct {
	mappings map[string][]string // metric -> []components
	metadata map[string]ComponentMetadata
}

type ComponentMetadata struct {
	Name        string
	Description string
	Team        string
	Contact     string
	Priority    int // For conflict resolution
}

func NewComponentAuthorityMap() *ComponentAuthorityMap {
	cam := &ComponentAuthorityMap{
		mappings: make(map[string][]string),
		metadata: make(map[string]ComponentMetadata),
	}
	cam.initializeAuthorities()
	return cam
}

func (cam *ComponentAuthorityMap) initializeAuthorities() {
	// Outbound delivery
	cam.addAuthority("failure_rate", []string{"message_sender", "template_service"})
	cam.addAuthority("delivery_rate", []string{"message_sender"})
	cam.addAuthority("send_latency_ms", []string{"message_sender", "api_gateway"})

	// Webhooks
	cam.addAuthority("webhook_latency_ms", []string{"webhook_processor"})
	cam.addAuthority("webhook_error_rate", []string{"webhook_processor"})
	cam.addAuthority("duplicate_webhooks", []string{"webhook_processor"})

	// Queueing
	cam.addAuthority("queue_depth", []string{"queue_worker"})
	cam.addAuthority("worker_ready_ratio", []string{"queue_worker"})
	cam.addAuthority("worker_restarts", []string{"queue_worker"})

	// Cache and platform health
	cam.addAuthority("cache_hit_rate", []string{"cache"})
	cam.addAuthority("health_score", []string{"api_gateway", "message_sender", "webhook_processor"})
	cam.addAuthority("error_rate", []string{"api_gateway"})

	cam.metadata["api_gateway"] = ComponentMetadata{
		Name:        "api_gateway",
		Description: "Public REST API accepting send requests",
		Team:        "platform",
		Contact:     "platform-team@company.com",
		Priority:    1,
	}

	cam.metadata["message_sender"] = ComponentMetadata{
		Name:        "message_sender",
		Description: "Delivers outbound messages to the messaging provider",
		Team:        "messaging",
		Contact:     "messaging-team@company.com",
		Priority:    1,
	}

	cam.metadata["template_service"] = ComponentMetadata{
		Name:        "template_service",
		Description: "Manages message templates and provider approval state",
		Team:        "messaging",
		Contact:     "messaging-team@company.com",
		Priority:    2,
	}

	cam.metadata["webhook_processor"] = ComponentMetadata{
		Name:        "webhook_processor",
		Description: "Consumes provider delivery and status webhooks",
		Team:        "integrations",
		Contact:     "integrations-team@company.com",
		Priority:    2,
	}

	cam.metadata["queue_worker"] = ComponentMetadata{
		Name:        "queue_worker",
		Description: "Background workers draining the send queue",
		Team:        "platform",
		Contact:     "platform-team@company.com",
		Priority:    2,
	}

	cam.metadata["cache"] = ComponentMetadata{
		Name:        "cache",
		Description: "Shared cache for contacts, templates and rate limits",
		Team:        "infrastructure",
		Contact:     "infra-team@company.com",
		Priority:    3,
	}
}

func (cam *ComponentAuthorityMap) addAuthority(metric string, components []string) {
	cam.mappings[metric] = components
}

func (cam *ComponentAuthorityMap) GetResponsibleComponents(metric string) []string {
	// Check exact match
	if components, exists := cam.mappings[metric]; exists {
		return components
	}

	// Check prefix match (for qualified metrics like failure_rate.whatsapp)
	for mapped, components := range cam.mappings {
		if strings.HasPrefix(metric, mapped+".") {
			return components
		}
	}

	return []string{}
}

// PrimaryComponent returns the highest-priority owner of a metric.
func (cam *ComponentAuthorityMap) PrimaryComponent(metric string) (string, bool) {
	components := cam.GetResponsibleComponents(metric)
	if len(components) == 0 {
		return "", false
	}

	best := components[0]
	for _, c := range components[1:] {
		if cam.priority(c) < cam.priority(best) {
			best = c
		}
	}
	return best, true
}

func (cam *ComponentAuthorityMap) priority(component string) int {
	if md, ok := cam.metadata[component]; ok {
		return md.Priority
	}
	return 1 << 10
}

func (cam *ComponentAuthorityMap) GetAllComponents() []string {
	seen := make(map[string]bool)
	components := make([]string, 0)

	for _, comps := range cam.mappings {
		for _, c := range comps {
			if !seen[c] {
				seen[c] = true
				components = append(components, c)
			}
		}
	}
	for c := range cam.metadata {
		if !seen[c] {
			seen[c] = true
			components = append(components, c)
		}
	}

	sort.Strings(components)
	return components
}

func (cam *ComponentAuthorityMap) GetComponentMetadata(component string) (ComponentMetadata, bool) {
	metadata, exists := cam.metadata[component]
	return metadata, exists
}

// KnownComponent reports whether flags may target the component.
func (cam *ComponentAuthorityMap) KnownComponent(component string) bool {
	_, exists := cam.metadata[component]
	return exists
}

func (cam *ComponentAuthorityMap) ValidateAuthority(component, metric string) bool {
	for _, c := range cam.GetResponsibleComponents(metric) {
		if c == component {
			return true
		}
	}
	return false
}
