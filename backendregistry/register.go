// Package backendregistry registers the built-in backend factories.
// Vendor-specific backends (native runtime bindings, proprietary SDKs)
// live in separate modules and register themselves the same way.
package backendregistry

import (
	stderrors "errors"

	"github.com/servo/webxr/backend/headless"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/registry"
)

// Register registers all built-in backend factories with the provided
// registry:
//
//   - headless: a simulated device driven entirely from code, used for
//     tests, development and CI where no hardware exists.
//
// The remote backend is not factory-built because it needs a live
// transport; construct it with remote.NewBackend and register it on the
// registry directly.
func Register(r *registry.Registry) error {
	if r == nil {
		return errors.WrapFatal(
			stderrors.New("registry cannot be nil"),
			"BackendRegistry", "Register", "registry validation")
	}

	if err := headless.Register(r); err != nil {
		return errors.WrapInvalid(err, "BackendRegistry", "Register", "headless backend factory registration")
	}

	return nil
}
