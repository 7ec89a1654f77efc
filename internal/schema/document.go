// Package schema resolves OpenAPI operation ids to request paths.
//
// A ZDS service publishes its OpenAPI document at schema/openapi.yaml under
// its base URL. Operations are named {resource}_{action}, for example
// zaak_read or status_create. Older services still publish Swagger 2.0,
// which Normalize upgrades to the OpenAPI 3 layout before use.
package schema

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Static errors for err113 compliance.
var (
	ErrOperationNotFound    = errors.New("operation not found in schema")
	ErrMissingPathParameter = errors.New("missing path parameter")
	ErrUnsupportedDocument  = errors.New("unsupported schema document")
	ErrDuplicateOperation   = errors.New("duplicate operation id")
)

var httpMethods = map[string]struct{}{
	"get": {}, "put": {}, "post": {}, "delete": {},
	"options": {}, "head": {}, "patch": {}, "trace": {},
}

var templateVariable = regexp.MustCompile(`\{([^}/]+)\}`)

// Server is an OpenAPI 3 server entry.
type Server struct {
	URL string `yaml:"url" json:"url"`
}

// Parameter is an operation or path item parameter.
type Parameter struct {
	Name     string `yaml:"name"`
	In       string `yaml:"in"`
	Required bool   `yaml:"required"`
	Ref      string `yaml:"$ref"`
}

type rawOperation struct {
	OperationID string      `yaml:"operationId"`
	Parameters  []Parameter `yaml:"parameters"`
}

// Operation is one path + method combination.
type Operation struct {
	ID           string
	Method       string
	PathTemplate string
	Parameters   []Parameter
}

// Variables returns the names of the template variables, in order.
func (o Operation) Variables() []string {
	matches := templateVariable.FindAllStringSubmatch(o.PathTemplate, -1)

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, match[1])
	}

	return names
}

// Document is a parsed OpenAPI document, reduced to what is needed for URL
// resolution.
type Document struct {
	OpenAPI     string                          `yaml:"openapi"`
	Swagger     string                          `yaml:"swagger"`
	Host        string                          `yaml:"host"`
	SwaggerBase string                          `yaml:"basePath"`
	Schemes     []string                        `yaml:"schemes"`
	Servers     []Server                        `yaml:"servers"`
	Paths       map[string]map[string]yaml.Node `yaml:"paths"`

	operations map[string]Operation
}

// Parse decodes a YAML or JSON document, upgrades Swagger 2.0 and indexes
// the operations.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}

	err := yaml.Unmarshal(data, doc)
	if err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	err = Normalize(doc)
	if err != nil {
		return nil, err
	}

	err = doc.index()
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// Normalize upgrades a Swagger 2.0 document to the OpenAPI 3 layout: host,
// basePath and schemes become the first server URL. OpenAPI 3 documents are
// left untouched.
func Normalize(doc *Document) error {
	switch {
	case strings.HasPrefix(doc.OpenAPI, "3."):
		return nil

	case strings.HasPrefix(doc.Swagger, "2."):
		serverURL := doc.SwaggerBase
		if doc.Host != "" {
			scheme := "http"
			if len(doc.Schemes) > 0 {
				scheme = doc.Schemes[0]
			}

			serverURL = scheme + "://" + doc.Host + doc.SwaggerBase
		}

		if serverURL == "" {
			serverURL = "/"
		}

		doc.Servers = []Server{{URL: serverURL}}
		doc.OpenAPI = "3.0.0"
		doc.Swagger = ""
		doc.Host = ""
		doc.SwaggerBase = ""
		doc.Schemes = nil

		return nil

	default:
		return fmt.Errorf("%w: openapi=%q swagger=%q", ErrUnsupportedDocument, doc.OpenAPI, doc.Swagger)
	}
}

func (d *Document) index() error {
	d.operations = make(map[string]Operation)

	for pathTemplate, item := range d.Paths {
		var shared []Parameter

		if node, ok := item["parameters"]; ok {
			err := node.Decode(&shared)
			if err != nil {
				return fmt.Errorf("decoding parameters of %s: %w", pathTemplate, err)
			}
		}

		for method, node := range item {
			if _, ok := httpMethods[strings.ToLower(method)]; !ok {
				continue
			}

			var raw rawOperation

			err := node.Decode(&raw)
			if err != nil {
				return fmt.Errorf("decoding %s %s: %w", method, pathTemplate, err)
			}

			if raw.OperationID == "" {
				continue
			}

			if existing, dup := d.operations[raw.OperationID]; dup {
				return fmt.Errorf("%w: %s (%s %s and %s %s)", ErrDuplicateOperation, raw.OperationID,
					existing.Method, existing.PathTemplate, strings.ToUpper(method), pathTemplate)
			}

			d.operations[raw.OperationID] = Operation{
				ID:           raw.OperationID,
				Method:       strings.ToUpper(method),
				PathTemplate: pathTemplate,
				Parameters:   append(append([]Parameter{}, shared...), raw.Parameters...),
			}
		}
	}

	return nil
}

// Operation returns the operation with the given id.
func (d *Document) Operation(id string) (Operation, error) {
	op, ok := d.operations[id]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}

	return op, nil
}

// HasOperation reports whether id is defined.
func (d *Document) HasOperation(id string) bool {
	_, ok := d.operations[id]

	return ok
}

// OperationIDs returns all operation ids, sorted.
func (d *Document) OperationIDs() []string {
	ids := make([]string, 0, len(d.operations))
	for id := range d.operations {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Validate returns an error naming every id that is not defined.
func (d *Document) Validate(ids ...string) error {
	var missing []string

	for _, id := range ids {
		if !d.HasOperation(id) {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, strings.Join(missing, ", "))
	}

	return nil
}

// BasePath is the path component of the first server URL, without a
// trailing slash.
func (d *Document) BasePath() string {
	if len(d.Servers) == 0 {
		return ""
	}

	parsed, err := url.Parse(d.Servers[0].URL)
	if err != nil {
		return ""
	}

	return strings.TrimSuffix(parsed.Path, "/")
}

// ResolvePath returns the absolute request path for the operation, with the
// template variables substituted from params. Every variable must have a
// non-empty value; params not used by the template are ignored.
func (d *Document) ResolvePath(id string, params map[string]string) (string, error) {
	op, err := d.Operation(id)
	if err != nil {
		return "", err
	}

	var missing error

	resolved := templateVariable.ReplaceAllStringFunc(op.PathTemplate, func(variable string) string {
		name := variable[1 : len(variable)-1]

		value, ok := params[name]
		if !ok || value == "" {
			if missing == nil {
				missing = fmt.Errorf("%w: %s requires %q", ErrMissingPathParameter, id, name)
			}

			return variable
		}

		return url.PathEscape(value)
	})

	if missing != nil {
		return "", missing
	}

	return d.BasePath() + resolved, nil
}
