package httpapi

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Request payloads are validated against JSON Schemas before decoding,
// so malformed writes are rejected with a field-level message instead of
// a generic decode error.

const createCanvasSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 200},
		"description": {"type": "string", "maxLength": 2000}
	},
	"additionalProperties": false
}`

const updateCanvasSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 200},
		"description": {"type": "string", "maxLength": 2000},
		"viewport_x": {"type": "number"},
		"viewport_y": {"type": "number"},
		"zoom_level": {"type": "number"},
		"grid_enabled": {"type": "boolean"},
		"snap_to_grid": {"type": "boolean"},
		"grid_size": {"type": "integer", "minimum": 1, "maximum": 500}
	},
	"additionalProperties": false
}`

const createNodeSchema = `{
	"type": "object",
	"required": ["node_type"],
	"properties": {
		"name": {"type": "string", "maxLength": 200},
		"node_type": {
			"type": "string",
			"enum": ["problem", "objective", "keyresult", "metric", "doc",
				"agent", "skill", "webhook", "api", "mcp", "custom"]
		},
		"position_x": {"type": "number"},
		"position_y": {"type": "number"},
		"width": {"type": "number", "minimum": 40},
		"height": {"type": "number", "minimum": 40},
		"content": {"type": "string"},
		"config": {"type": ["object", "null"]},
		"color": {"type": "string", "maxLength": 32},
		"border_color": {"type": "string", "maxLength": 32}
	},
	"additionalProperties": false
}`

const updateNodeSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "maxLength": 200},
		"position_x": {"type": "number"},
		"position_y": {"type": "number"},
		"width": {"type": "number", "minimum": 40},
		"height": {"type": "number", "minimum": 40},
		"content": {"type": "string"},
		"config": {"type": ["object", "null"]},
		"color": {"type": "string", "maxLength": 32},
		"border_color": {"type": "string", "maxLength": 32},
		"is_locked": {"type": "boolean"},
		"is_collapsed": {"type": "boolean"},
		"z_index": {"type": "integer"},
		"workflow_stage": {
			"type": "string",
			"enum": ["research", "prd_review", "ux_review", "tech_spec",
				"project_kickoff", "development", "qa", "launch", "retrospective"]
		}
	},
	"additionalProperties": false
}`

const createConnectionSchema = `{
	"type": "object",
	"required": ["source_node_id", "target_node_id"],
	"properties": {
		"source_node_id": {"type": "integer"},
		"target_node_id": {"type": "integer"},
		"source_anchor": {
			"type": "string",
			"enum": ["top", "bottom", "left", "right",
				"top-left", "top-right", "bottom-left", "bottom-right"]
		},
		"target_anchor": {
			"type": "string",
			"enum": ["top", "bottom", "left", "right",
				"top-left", "top-right", "bottom-left", "bottom-right"]
		},
		"connection_type": {"type": "string", "maxLength": 64},
		"style": {"type": "string", "enum": ["solid", "dashed", "dotted"]},
		"color": {"type": "string", "maxLength": 32},
		"label": {"type": "string", "maxLength": 200}
	},
	"additionalProperties": false
}`

const batchPositionsSchema = `{
	"type": "object",
	"required": ["nodes"],
	"properties": {
		"nodes": {
			"type": "array",
			"maxItems": 1000,
			"items": {
				"type": "object",
				"required": ["id", "position_x", "position_y"],
				"properties": {
					"id": {"type": "integer"},
					"position_x": {"type": "number"},
					"position_y": {"type": "number"}
				},
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`

type requestSchemas struct {
	createCanvas     *jsonschema.Schema
	updateCanvas     *jsonschema.Schema
	createNode       *jsonschema.Schema
	updateNode       *jsonschema.Schema
	createConnection *jsonschema.Schema
	batchPositions   *jsonschema.Schema
}

func compileRequestSchemas() (*requestSchemas, error) {
	compiler := jsonschema.NewCompiler()
	sources := map[string]string{
		"canvaskit://schemas/create-canvas.json":     createCanvasSchema,
		"canvaskit://schemas/update-canvas.json":     updateCanvasSchema,
		"canvaskit://schemas/create-node.json":       createNodeSchema,
		"canvaskit://schemas/update-node.json":       updateNodeSchema,
		"canvaskit://schemas/create-connection.json": createConnectionSchema,
		"canvaskit://schemas/batch-positions.json":   batchPositionsSchema,
	}
	for url, raw := range sources {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(raw)))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", url, err)
		}
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("registering schema %s: %w", url, err)
		}
	}
	out := &requestSchemas{}
	targets := []struct {
		url  string
		dest **jsonschema.Schema
	}{
		{"canvaskit://schemas/create-canvas.json", &out.createCanvas},
		{"canvaskit://schemas/update-canvas.json", &out.updateCanvas},
		{"canvaskit://schemas/create-node.json", &out.createNode},
		{"canvaskit://schemas/update-node.json", &out.updateNode},
		{"canvaskit://schemas/create-connection.json", &out.createConnection},
		{"canvaskit://schemas/batch-positions.json", &out.batchPositions},
	}
	for _, target := range targets {
		schema, err := compiler.Compile(target.url)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", target.url, err)
		}
		*target.dest = schema
	}
	return out, nil
}

// validatePayload checks raw JSON against a schema and returns a short
// human-readable reason on failure.
func validatePayload(schema *jsonschema.Schema, body []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid json body")
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return nil
}
