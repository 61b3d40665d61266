package metrics

import "fmt"

// Tag creates a formatted DataDog tag string in "key:value" format.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// PolicyTag creates a rate-limit policy tag.
func PolicyTag(policy string) string {
	return Tag("policy", policy)
}

// WindowTag creates a rate-limit window tag (minute/hour).
func WindowTag(window string) string {
	return Tag("window", window)
}

// ServiceTag creates a protected-service tag.
func ServiceTag(service string) string {
	return Tag("service", service)
}

// StateTag creates a circuit breaker state tag.
func StateTag(state string) string {
	return Tag("circuit_state", state)
}

// CollectionTag creates a cached-collection tag.
func CollectionTag(collection string) string {
	return Tag("collection", collection)
}
