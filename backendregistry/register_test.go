package backendregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/registry"
)

func TestRegisterBuiltins(t *testing.T) {
	r := registry.NewRegistry()
	require.NoError(t, Register(r))
	assert.Contains(t, r.ListFactories(), "headless")
}

func TestRegisterNilRegistry(t *testing.T) {
	err := Register(nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRegisterTwiceFails(t *testing.T) {
	r := registry.NewRegistry()
	require.NoError(t, Register(r))
	err := Register(r)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
