// Package device defines the contract every XR backend implements and the
// data types that cross it.
//
// A backend is the integration with one vendor's hardware or SDK. Backends
// are probed by the discovery registry, hand out Device handles when they can
// satisfy a session request, and expose per-frame data through an Endpoint
// that is polled from the session's device loop - never from the content
// thread. All data crossing the contract is copied; a backend keeps no
// references into frames it has already delivered.
package device
