package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
)

// MaxConfigSize bounds backend configuration documents.
const MaxConfigSize = 1024 * 1024

// Factory creates a backend instance from raw JSON configuration. The
// factory parses its own config and returns an initialized backend; it
// must not perform I/O, that belongs to probing and session opening.
type Factory func(rawConfig json.RawMessage) (device.Backend, error)

// FactoryRegistration holds a factory and its metadata.
type FactoryRegistration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Version     string          `json:"version"`
	Schema      json.RawMessage `json:"schema"` // JSON Schema for the config document
	Factory     Factory         `json:"-"`      // not serializable
}

// RegisterFactory registers a backend factory by name. Returns an error
// if a factory with the same name is already registered.
func (r *Registry) RegisterFactory(reg *FactoryRegistration) error {
	if reg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	if reg.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Name]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", reg.Name)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}

	r.factories[reg.Name] = reg
	return nil
}

// CreateBackend builds a backend from a registered factory and registers
// it for probing. The config document is validated against the factory's
// JSON schema before the factory runs.
func (r *Registry) CreateBackend(factoryName string, rawConfig json.RawMessage) (device.Backend, error) {
	if len(rawConfig) > MaxConfigSize {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "CreateBackend", "config size validation")
	}

	r.mu.RLock()
	reg, exists := r.factories[factoryName]
	r.mu.RUnlock()

	if !exists {
		msg := fmt.Errorf("unknown backend factory '%s'", factoryName)
		return nil, errors.WrapInvalid(msg, "Registry", "CreateBackend", "factory lookup")
	}

	if len(rawConfig) == 0 {
		rawConfig = json.RawMessage("{}")
	}

	if len(reg.Schema) > 0 {
		if err := validateConfig(reg.Schema, rawConfig); err != nil {
			return nil, errors.Wrap(err, "Registry", "CreateBackend", fmt.Sprintf("validating config for factory %s", factoryName))
		}
	}

	backend, err := reg.Factory(rawConfig)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateBackend", "factory execution")
	}

	if err := r.Register(backend); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateBackend", "backend registration")
	}

	return backend, nil
}

// ListFactories returns the registered factory names, sorted.
func (r *Registry) ListFactories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FactorySchema returns the config schema a factory was registered with.
func (r *Registry) FactorySchema(name string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.factories[name]
	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("backend factory %q not found", name),
			"Registry", "FactorySchema", "factory lookup")
	}
	return reg.Schema, nil
}

// validateConfig checks a config document against a JSON schema.
func validateConfig(schema, document json.RawMessage) error {
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.WrapInvalid(err, "Registry", "validateConfig", "schema evaluation")
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(details, "; ")),
			"Registry", "validateConfig", "config schema validation")
	}

	return nil
}
