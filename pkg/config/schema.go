package config

// configSchema is the JSON schema every loaded configuration must satisfy.
// Enum-like fields are checked in Go where the error messages can name the
// accepted constants.
const configSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["maxFrames", "frameTTL", "inactivityTimeout", "limits", "sampling"],
	"properties": {
		"maxFrames": {"type": "integer", "minimum": 1},
		"frameTTL": {"type": "integer", "minimum": 100},
		"inactivityTimeout": {"type": "integer", "minimum": 100},
		"evictionInterval": {"type": "integer", "minimum": 50},
		"limits": {"$ref": "#/definitions/limits"},
		"relaxedLimits": {"$ref": "#/definitions/limits"},
		"sampling": {
			"type": "object",
			"properties": {
				"mode": {"type": "string"},
				"perNode": {"type": "integer", "minimum": 0}
			}
		},
		"orphanOutputs": {"type": "string"},
		"server": {
			"type": "object",
			"properties": {
				"addr": {"type": "string", "minLength": 1},
				"debug": {"type": "boolean"}
			}
		},
		"history": {
			"type": "object",
			"properties": {
				"enabled": {"type": "boolean"},
				"path": {"type": "string"},
				"maxRows": {"type": "integer", "minimum": 0}
			}
		},
		"logging": {
			"type": "object",
			"properties": {
				"level": {"type": "string"},
				"pretty": {"type": "boolean"}
			}
		}
	},
	"definitions": {
		"limits": {
			"type": "object",
			"properties": {
				"maxDepth": {"type": "integer", "minimum": 1},
				"maxKeys": {"type": "integer", "minimum": 1},
				"maxArrayItems": {"type": "integer", "minimum": 1},
				"maxStringLength": {"type": "integer", "minimum": 1},
				"maxPayloadBytes": {"type": "integer", "minimum": 1}
			}
		}
	}
}`
