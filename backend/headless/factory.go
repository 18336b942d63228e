package headless

import (
	"encoding/json"

	"github.com/servo/webxr/device"
	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/registry"
)

// FactoryName is the name the backend factory registers under.
const FactoryName = "headless"

// configSchema validates headless backend configuration documents.
var configSchema = json.RawMessage(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"supportedFeatures": {
			"type": "array",
			"items": {"type": "string"}
		},
		"frameIntervalMs": {
			"type": "integer",
			"minimum": 1,
			"maximum": 1000
		},
		"floorHeight": {
			"type": "number",
			"minimum": 0
		},
		"bounds": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"x": {"type": "number"},
					"y": {"type": "number"},
					"z": {"type": "number"}
				},
				"additionalProperties": false
			}
		},
		"convention": {
			"type": "object",
			"properties": {
				"scale": {"type": "number", "exclusiveMinimum": 0},
				"left_handed": {"type": "boolean"}
			},
			"additionalProperties": false
		},
		"stereo": {"type": "boolean"},
		"viewerOrigin": {
			"type": "object",
			"properties": {
				"rotation": {
					"type": "object",
					"properties": {
						"x": {"type": "number"},
						"y": {"type": "number"},
						"z": {"type": "number"},
						"w": {"type": "number"}
					},
					"additionalProperties": false
				},
				"position": {
					"type": "object",
					"properties": {
						"x": {"type": "number"},
						"y": {"type": "number"},
						"z": {"type": "number"}
					},
					"additionalProperties": false
				}
			},
			"additionalProperties": false
		},
		"initialInputs": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "integer", "minimum": 0},
					"handedness": {"type": "integer", "minimum": 0, "maximum": 2},
					"target_ray_mode": {"type": "integer", "minimum": 0, "maximum": 2}
				},
				"required": ["id"],
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`)

// Register registers the headless backend factory with a registry.
func Register(r *registry.Registry) error {
	return r.RegisterFactory(&registry.FactoryRegistration{
		Name:        FactoryName,
		Description: "Simulated device serving ticker-paced frames with scriptable viewer and inputs",
		Version:     "1.0.0",
		Schema:      configSchema,
		Factory: func(rawConfig json.RawMessage) (device.Backend, error) {
			var init Init
			if err := json.Unmarshal(rawConfig, &init); err != nil {
				return nil, errors.WrapInvalid(err, "headless", "Factory", "parsing backend config")
			}
			return New(init), nil
		},
	})
}
