package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of an appliance file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported config file extension: %q", filepath.Ext(path))
	}
}

// Loader reads appliance files, applies defaults and validates them.
type Loader struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a new loader.
func NewLoader() *Loader {
	return &Loader{
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
	}
}

// Schemas returns the schema registry used by the loader.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// LoadFile reads and validates the file at path.
func (l *Loader) LoadFile(path string) (*File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.load(path, data, format)
}

// Load decodes and validates data in the given format.
func (l *Loader) Load(data []byte, format Format) (*File, error) {
	return l.load("", data, format)
}

func (l *Loader) load(filename string, data []byte, format Format) (*File, error) {
	var (
		file *File
		err  error
	)

	switch format {
	case FormatYAML:
		file, err = l.decodeYAML(filename, data)
	case FormatJSON:
		file, err = l.decodeJSON(filename, data)
	case FormatCUE:
		file, err = l.decodeCUE(filename, data)
	default:
		return nil, fmt.Errorf("unsupported config format: %q", format)
	}
	if err != nil {
		return nil, err
	}

	file.applyDefaults()

	if err := l.Validate(file); err != nil {
		return nil, err
	}
	return file, nil
}

// Validate checks a decoded file against the file schema and struct tags.
func (l *Loader) Validate(file *File) error {
	if err := l.schemas.ValidateAgainstSchema("file", file); err != nil {
		return convertCUEErrors("", err)
	}

	if err := l.validator.Struct(file); err != nil {
		return convertValidatorErrors(err)
	}
	return nil
}

func (l *Loader) decodeYAML(filename string, data []byte) (*File, error) {
	file := &File{}
	if len(bytes.TrimSpace(data)) == 0 {
		return file, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(file); err != nil {
		return nil, ValidationErrors{{File: filename, Message: err.Error()}}
	}
	return file, nil
}

func (l *Loader) decodeJSON(filename string, data []byte) (*File, error) {
	name := filename
	if name == "" {
		name = "input.json"
	}

	expr, err := cuejson.Extract(name, data)
	if err != nil {
		return nil, convertCUEErrors(filename, err)
	}

	return l.decodeValue(filename, l.schemas.Context().BuildExpr(expr))
}

func (l *Loader) decodeCUE(filename string, data []byte) (*File, error) {
	var opts []cue.BuildOption
	if filename != "" {
		opts = append(opts, cue.Filename(filename))
	}

	return l.decodeValue(filename, l.schemas.Context().CompileBytes(data, opts...))
}

// decodeValue unifies val with the file schema and decodes the result.
func (l *Loader) decodeValue(filename string, val cue.Value) (*File, error) {
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(filename, err)
	}

	unified, err := l.schemas.Unify("file", val)
	if err != nil {
		return nil, convertCUEErrors(filename, err)
	}

	file := &File{}
	if err := unified.Decode(file); err != nil {
		return nil, convertCUEErrors(filename, err)
	}
	return file, nil
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(filename string, err error) ValidationErrors {
	var out ValidationErrors

	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			File:    filename,
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		}

		if pos := cueerrors.Positions(e); len(pos) > 0 {
			if pos[0].Filename() != "" {
				ve.File = pos[0].Filename()
			}
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}

		out = append(out, ve)
	}

	if len(out) == 0 {
		out = ValidationErrors{{File: filename, Message: err.Error()}}
	}
	return out
}

// convertValidatorErrors converts struct tag failures to ValidationErrors.
func convertValidatorErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("failed %q check", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q check (%s)", fe.Tag(), fe.Param())
		}
		out = append(out, ValidationError{
			Path:    fe.Namespace(),
			Message: msg,
		})
	}
	return out
}
