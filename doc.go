// Package webxr provides a vendor-neutral device abstraction layer for
// XR (virtual and augmented reality) hosts, separating what applications
// ask for from how devices deliver it.
//
// # Philosophy: Hosts Ask, Backends Answer
//
// The host side expresses intent only: which features a session needs,
// which reference space poses should be reported in, when the next frame
// is wanted. Backends own everything device-specific: native coordinate
// conventions, frame pacing, input hardware, loss detection.
//
// The core module MUST NOT contain:
//   - Vendor SDK bindings (OpenXR loaders, runtime-specific drivers)
//   - Rendering or compositor code
//   - Application logic (scene graphs, interaction toolkits)
//
// Vendor backends belong in separate modules that implement
// device.Backend and register a factory with the registry.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│           Registry                  │  Discovery, first-match
//	│   (probe, open, factories)          │  backend selection
//	└─────────────────────────────────────┘
//	           ↓ grants
//	┌─────────────────────────────────────┐
//	│        Session Controller           │  Lifecycle, frame loop,
//	│   (request, frame, recenter, end)   │  loss handling
//	└─────────────────────────────────────┘
//	           ↓ composes via
//	┌─────────────────────────────────────┐
//	│   Frame Synchronizer + Resolver     │  Sequencing, reference
//	│     (space, frame, transform)       │  space math
//	└─────────────────────────────────────┘
//	           ↓ polls
//	┌─────────────────────────────────────┐
//	│           Backends                  │  headless (simulated),
//	│    (device.Backend, Endpoint)       │  remote (wire protocol)
//	└─────────────────────────────────────┘
//
// The remote backend and agent pair extend the same contract across a
// NATS transport, so a host can drive devices attached to another
// process or machine.
//
// # Getting Started
//
// Register a backend, request a session, then pump frames:
//
//	reg := registry.NewRegistry()
//	_ = reg.Register(headless.New(headless.Init{Stereo: true}))
//
//	sess, err := reg.RequestSession(
//		device.SessionRequest{Required: device.NewFeatureSet(device.FeatureViewer, device.FeatureLocal)},
//		device.SessionInit{Name: "example"},
//		space.Local,
//	)
//	if err != nil {
//		// no capable device
//	}
//	frame, err := sess.RequestFrame(ctx)
package webxr
