package schema_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maykinmedia/gemma-zaken-demo/internal/schema"
)

func loadDocument(t *testing.T, name string) *schema.Document {
	t.Helper()

	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)

	doc, err := schema.Parse(data)
	require.NoError(t, err)

	return doc
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestDocument_ResolvePath(t *testing.T) {
	t.Parallel()

	doc := loadDocument(t, "zrc-openapi.yaml")

	tests := []struct {
		name      string
		operation string
		params    map[string]string
		expected  string
		err       error
	}{
		{
			name:      "collection",
			operation: "zaak_list",
			expected:  "/api/v1/zaken",
		},
		{
			name:      "single variable",
			operation: "zaak_read",
			params:    map[string]string{"uuid": "abc-123"},
			expected:  "/api/v1/zaken/abc-123",
		},
		{
			name:      "nested variables",
			operation: "zaakeigenschap_read",
			params:    map[string]string{"zaak_uuid": "z1", "uuid": "e1"},
			expected:  "/api/v1/zaken/z1/zaakeigenschappen/e1",
		},
		{
			name:      "extra parameters are ignored",
			operation: "status_read",
			params:    map[string]string{"uuid": "s1", "zaak": "ignored"},
			expected:  "/api/v1/statussen/s1",
		},
		{
			name:      "values are path escaped",
			operation: "zaak_read",
			params:    map[string]string{"uuid": "a b/c"},
			expected:  "/api/v1/zaken/a%20b%2Fc",
		},
		{
			name:      "missing variable",
			operation: "zaak_read",
			params:    map[string]string{},
			err:       schema.ErrMissingPathParameter,
		},
		{
			name:      "empty variable",
			operation: "zaak_read",
			params:    map[string]string{"uuid": ""},
			err:       schema.ErrMissingPathParameter,
		},
		{
			name:      "one of two variables missing",
			operation: "zaakeigenschap_read",
			params:    map[string]string{"uuid": "e1"},
			err:       schema.ErrMissingPathParameter,
		},
		{
			name:      "unknown operation",
			operation: "besluit_read",
			params:    map[string]string{"uuid": "b1"},
			err:       schema.ErrOperationNotFound,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			path, err := doc.ResolvePath(testCase.operation, testCase.params)
			if testCase.err != nil {
				require.ErrorIs(t, err, testCase.err)
				assert.Empty(t, path)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.expected, path)
		})
	}
}

func TestDocument_ResolveEveryOperation(t *testing.T) {
	t.Parallel()

	doc := loadDocument(t, "zrc-openapi.yaml")

	for _, id := range doc.OperationIDs() {
		op, err := doc.Operation(id)
		require.NoError(t, err)

		params := map[string]string{}
		for _, name := range op.Variables() {
			params[name] = "x"
		}

		path, err := doc.ResolvePath(id, params)
		require.NoError(t, err, id)
		assert.NotEmpty(t, path)
		assert.NotContains(t, path, "{", id)

		if len(op.Variables()) > 0 {
			_, err = doc.ResolvePath(id, nil)
			require.ErrorIs(t, err, schema.ErrMissingPathParameter, id)
		}
	}
}

func TestDocument_Operation(t *testing.T) {
	t.Parallel()

	doc := loadDocument(t, "zrc-openapi.yaml")

	op, err := doc.Operation("zaak_partial_update")
	require.NoError(t, err)
	assert.Equal(t, "PATCH", op.Method)
	assert.Equal(t, "/zaken/{uuid}", op.PathTemplate)
	require.Len(t, op.Parameters, 1)
	assert.Equal(t, "uuid", op.Parameters[0].Name)

	op, err = doc.Operation("zaak_list")
	require.NoError(t, err)
	assert.Equal(t, "GET", op.Method)
	assert.Empty(t, op.Variables())
}

func TestDocument_Validate(t *testing.T) {
	t.Parallel()

	doc := loadDocument(t, "zrc-openapi.yaml")

	require.NoError(t, doc.Validate("zaak_list", "zaak_read", "status_create"))

	err := doc.Validate("zaak_list", "resultaat_create", "besluit_read")
	require.ErrorIs(t, err, schema.ErrOperationNotFound)
	assert.Contains(t, err.Error(), "resultaat_create")
	assert.Contains(t, err.Error(), "besluit_read")
}

func TestNormalize_Swagger2(t *testing.T) {
	t.Parallel()

	doc := loadDocument(t, "ztc-swagger.yaml")

	assert.Equal(t, "3.0.0", doc.OpenAPI)
	assert.Empty(t, doc.Swagger)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "http://localhost:8002/api/v1", doc.Servers[0].URL)

	path, err := doc.ResolvePath("zaaktype_read", map[string]string{"catalogus_uuid": "c1", "uuid": "t1"})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/catalogussen/c1/zaaktypen/t1", path)
}

func TestNormalize_Swagger2WithoutHost(t *testing.T) {
	t.Parallel()

	doc, err := schema.Parse([]byte("swagger: '2.0'\nbasePath: /api/v1\npaths:\n  /besluiten:\n    get:\n      operationId: besluit_list\n"))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", doc.Servers[0].URL)

	path, err := doc.ResolvePath("besluit_list", nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/besluiten", path)
}

func TestParse_JSON(t *testing.T) {
	t.Parallel()

	data := `{"openapi":"3.0.2","servers":[{"url":"http://localhost:8001/api/v1/"}],` +
		`"paths":{"/enkelvoudiginformatieobjecten/{uuid}":{"get":{"operationId":"enkelvoudiginformatieobject_read"}}}}`

	doc, err := schema.Parse([]byte(data))
	require.NoError(t, err)

	path, err := doc.ResolvePath("enkelvoudiginformatieobject_read", map[string]string{"uuid": "d1"})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/enkelvoudiginformatieobjecten/d1", path)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	_, err := schema.Parse([]byte("info:\n  title: no version\n"))
	require.ErrorIs(t, err, schema.ErrUnsupportedDocument)

	_, err = schema.Parse([]byte("swagger: '1.2'\n"))
	require.ErrorIs(t, err, schema.ErrUnsupportedDocument)

	_, err = schema.Parse([]byte("openapi: 3.0.0\npaths: [\n"))
	require.Error(t, err)

	duplicate := "openapi: 3.0.0\npaths:\n  /a:\n    get:\n      operationId: a_list\n  /b:\n    get:\n      operationId: a_list\n"
	_, err = schema.Parse([]byte(duplicate))
	require.ErrorIs(t, err, schema.ErrDuplicateOperation)
}
