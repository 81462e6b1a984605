package config

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry holds named CUE definitions that appliance data is checked
// against. It starts with "file", "request" and "devices".
type SchemaRegistry struct {
	mu      sync.RWMutex
	cuectx  *cue.Context
	schemas map[string]cue.Value
}

var builtinDefinitions = map[string]string{
	"file":    "#File",
	"request": "#WashRequest",
	"devices": "#Devices",
}

func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{cuectx: cuecontext.New(), schemas: map[string]cue.Value{}}

	root := sr.cuectx.CompileString(builtinSchemas, cue.Filename("builtin.cue"))
	if err := root.Err(); err != nil {
		panic(fmt.Sprintf("config: builtin schemas: %v", err))
	}
	for name, path := range builtinDefinitions {
		def := root.LookupPath(cue.ParsePath(path))
		if err := def.Err(); err != nil {
			panic(fmt.Sprintf("config: builtin schema %s: %v", path, err))
		}
		sr.schemas[name] = def
	}
	return sr
}

// RegisterSchema compiles schema and stores it under name, replacing any
// previous entry.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	val := sr.cuectx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}
	sr.mu.Lock()
	sr.schemas[name] = val
	sr.mu.Unlock()
	return nil
}

func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	val, ok := sr.schemas[name]
	sr.mu.RUnlock()
	return val, ok
}

// Context returns the CUE context schemas were compiled in. Values unified
// with a schema must come from the same context.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.cuectx
}

// Unify unifies val with the named schema and checks the result is concrete.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("unknown schema %q", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema encodes data and checks it against the named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data any) error {
	val := sr.cuectx.Encode(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode for %s: %w", schemaName, err)
	}
	if _, err := sr.Unify(schemaName, val); err != nil {
		return fmt.Errorf("%s: %w", schemaName, err)
	}
	return nil
}

// ListSchemas returns the registered names in order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return slices.Sorted(maps.Keys(sr.schemas))
}

// Built-in schema definitions. Enum casing is normalized before validation,
// so request enums are checked by struct tags rather than here.
const builtinSchemas = `
#File: {
	telemetry?: #Telemetry
	store?:     #Store
	devices?:   #Devices
	broadcast?: #Broadcast
	request?:   #WashRequest
}

#Telemetry: {
	service_name?: string
	environment?:  string
	logging?: {
		level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal" | ""
		format?: "console" | "json" | ""
		output?: string
	}
	tracing?: {
		exporter?:      "none" | "stdout" | "otlp" | ""
		endpoint?:      string
		sampling_rate?: number & >=0 & <=1
		insecure?:      bool
	}
	metrics?: {
		enabled?:   bool
		address?:   string
		namespace?: string & =~"^([a-zA-Z_][a-zA-Z0-9_]*)?$"
	}
}

#Broadcast: {
	redis?: {
		address?:  string
		password?: string
		db?:       int & >=0
		channel?:  string
	}
}

#Store: {
	path?: string
}

#Devices: {
	door?: {
		open?: bool
	}
	filter?: {
		capacity?: number & >=0 & <=100
	}
	pump?: {
		fault?: string
	}
	engine?: {
		fault?: string
	}
}

#WashRequest: {
	fill_level:    string
	program:       string
	tablets_used?: bool
}
`
