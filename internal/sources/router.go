package sources

import (
	"fetchd/internal/fetcherr"
	"fetchd/internal/queue"
)

// Router maps source types to their capability implementations. The mapping
// is closed: it is populated once at construction and read-only afterward.
type Router struct {
	capabilities map[queue.SourceType]Capability
}

// NewRouter builds the default routing table: YouTube gets the dedicated
// capability, every other recognized source shares the generic HTTP one.
func NewRouter() *Router {
	youtube := NewYouTubeCapability()
	generic := NewGenericCapability()
	return &Router{
		capabilities: map[queue.SourceType]Capability{
			queue.SourceYouTube:  youtube,
			queue.SourceFacebook: generic,
			queue.SourceArchive:  generic,
			queue.SourceLecture:  generic,
			queue.SourceGeneric:  generic,
		},
	}
}

// NewRouterWithCapabilities builds a router from an explicit table (tests).
func NewRouterWithCapabilities(table map[queue.SourceType]Capability) *Router {
	capabilities := make(map[queue.SourceType]Capability, len(table))
	for source, capability := range table {
		capabilities[source] = capability
	}
	return &Router{capabilities: capabilities}
}

// CapabilityFor returns the implementation responsible for a source type.
func (r *Router) CapabilityFor(source queue.SourceType) (Capability, error) {
	capability, ok := r.capabilities[source]
	if !ok {
		return nil, fetcherr.Wrap(fetcherr.ErrUnsupported, "router", "lookup", "no capability registered for "+string(source), nil)
	}
	return capability, nil
}
