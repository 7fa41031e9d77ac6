// Package core contains the canonical client contracts: request, response,
// and page shapes, the transport interface, the error taxonomy, and the
// configuration, checkpoint, and throttle contracts. Higher-level packages
// depend on this package; core must not depend on transport-specific or
// resource-specific packages.
package core
