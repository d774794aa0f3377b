package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/rbkit/pkg/telemetry"
)

// Loader reads resource definitions from YAML, JSON and CUE files.
type Loader struct {
	cue      *cue.Context
	schema   cue.Value
	validate *validator.Validate
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a loader. tel may be nil.
func NewLoader(tel *telemetry.Telemetry) *Loader {
	logger := telemetry.NewNopLogger()
	if tel != nil && tel.Logger != nil {
		logger = tel.Logger
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		panic(err)
	}

	return &Loader{
		cue:      ctx,
		schema:   schema,
		validate: v,
		tel:      tel,
		logger:   logger.NewComponentLogger("config"),
	}
}

// Load reads and validates the definitions in paths. Directories are
// walked recursively for definition files. A resource defined twice keeps
// its first position and takes the later definition.
func (l *Loader) Load(ctx context.Context, paths []string) (*Definitions, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	defs := &Definitions{LoadedAt: time.Now()}
	var problems ValidationErrors

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		files, err := definitionFiles(path)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			parsed, errs := l.loadFile(file)
			problems = append(problems, errs...)
			if parsed == nil {
				continue
			}
			l.merge(defs, parsed.Resources, file)
			defs.SourceFiles = append(defs.SourceFiles, file)
		}
	}

	problems = append(problems, l.check(defs)...)
	if len(problems) > 0 {
		return nil, problems
	}

	l.logger.WithFields(map[string]any{
		"resources": len(defs.Resources),
		"files":     len(defs.SourceFiles),
	}).Debug("resource definitions loaded")

	return defs, nil
}

// Parse reads definitions from content in the given format ("yaml",
// "json" or "cue") and validates them.
func (l *Loader) Parse(content []byte, format string) (*Definitions, error) {
	parsed, errs := l.decode("inline", content, format)
	if len(errs) > 0 {
		return nil, errs
	}
	parsed.SourceFiles = []string{"inline"}
	parsed.LoadedAt = time.Now()
	if errs := l.check(parsed); len(errs) > 0 {
		return nil, errs
	}
	return parsed, nil
}

func (l *Loader) merge(defs *Definitions, resources []ResourceDefinition, file string) {
	for _, r := range resources {
		if existing, ok := defs.Lookup(r.Name); ok && r.Name != "" {
			l.logger.WithField("file", file).WithField("resource", r.Name).Warn("resource redefined")
			*existing = r
			continue
		}
		defs.Resources = append(defs.Resources, r)
	}
}

func (l *Loader) loadFile(path string) (*Definitions, ValidationErrors) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, ValidationErrors{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "yml" {
		format = "yaml"
	}
	return l.decode(path, content, format)
}

func (l *Loader) decode(file string, content []byte, format string) (*Definitions, ValidationErrors) {
	var defs Definitions

	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(&defs); err != nil && !errors.Is(err, io.EOF) {
			return nil, yamlErrors(file, err)
		}

	case "json":
		if err := decodeJSON(content, &defs); err != nil {
			return nil, ValidationErrors{{File: file, Message: err.Error(), Severity: "error"}}
		}

	case "cue":
		val := l.cue.CompileBytes(content, cue.Filename(file))
		if err := val.Err(); err != nil {
			return nil, convertCUEErrors(err)
		}
		val = l.schema.Unify(val)
		if err := val.Validate(cue.Concrete(true)); err != nil {
			return nil, convertCUEErrors(err)
		}
		data, err := val.MarshalJSON()
		if err != nil {
			return nil, convertCUEErrors(err)
		}
		if err := decodeJSON(data, &defs); err != nil {
			return nil, ValidationErrors{{File: file, Message: err.Error(), Severity: "error"}}
		}

	default:
		return nil, ValidationErrors{{
			File:     file,
			Message:  fmt.Sprintf("unsupported format %q", format),
			Severity: "error",
		}}
	}

	return &defs, nil
}

// check validates struct tags and the constraints tags cannot express.
func (l *Loader) check(defs *Definitions) ValidationErrors {
	var problems ValidationErrors

	if err := l.validate.Struct(defs); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return ValidationErrors{{Message: err.Error(), Severity: "error"}}
		}
		for _, fe := range verrs {
			problems = append(problems, ValidationError{
				Path:     strings.TrimPrefix(fe.Namespace(), "Definitions."),
				Message:  fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
				Severity: "error",
			})
		}
	}

	for i, r := range defs.Resources {
		if r.Name == "" {
			problems = append(problems, ValidationError{
				Path:     fmt.Sprintf("resources[%d].name", i),
				Message:  "is required",
				Severity: "error",
			})
		}
		if r.Provider == "" {
			problems = append(problems, ValidationError{
				Path:     fmt.Sprintf("resources[%d].provider", i),
				Message:  "is required",
				Severity: "error",
			})
		}
	}
	return problems
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode definitions: %w", err)
	}
	return nil
}

func yamlErrors(file string, err error) ValidationErrors {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		return ValidationErrors{{File: file, Message: err.Error(), Severity: "error"}}
	}
	out := make(ValidationErrors, len(te.Errors))
	for i, msg := range te.Errors {
		out[i] = ValidationError{File: file, Message: msg, Severity: "error"}
	}
	return out
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors

	for _, e := range cueerrors.Errors(err) {
		var file string
		var line, column int
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		out = append(out, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		})
	}
	if len(out) == 0 {
		out = ValidationErrors{{Message: err.Error(), Severity: "error"}}
	}
	return out
}

func isDefinitionFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json", ".cue":
		return true
	}
	return false
}

// definitionFiles expands path into the definition files it names, in
// lexical order.
func definitionFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(file string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isDefinitionFile(file) {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", path, err)
	}
	return files, nil
}
