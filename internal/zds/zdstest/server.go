// Package zdstest runs an in-memory ZDS API for tests.
package zdstest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// BasePath is the API root served by the fake.
const BasePath = "/api/v1"

// Actions generated for a resource unless Resource.Actions says otherwise.
var defaultActions = []string{"list", "read", "create", "update", "partial_update", "delete"}

// Resource describes one collection of the fake API.
type Resource struct {
	// Name is the operation id prefix, e.g. "zaak".
	Name string
	// Collection is the path segment, e.g. "zaken".
	Collection string
	// Actions limits the generated operations. Nil means all actions.
	Actions []string
}

// ErrorBody is a ZDS error document.
type ErrorBody struct {
	Status        int            `json:"status"`
	Code          string         `json:"code"`
	Title         string         `json:"title"`
	Detail        string         `json:"detail,omitempty"`
	InvalidParams []InvalidParam `json:"invalid-params,omitempty"`
}

// InvalidParam is one field error.
type InvalidParam struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Validator inspects a create or update payload. A non-nil result is sent
// back instead of storing the payload.
type Validator func(resource string, data map[string]interface{}) *ErrorBody

// RecordedRequest is a request received by the fake.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	AcceptCrs     string
}

// Server is an in-memory ZDS API.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	resources map[string]Resource
	objects   map[string]map[string]map[string]interface{}
	order     map[string][]string
	nextID    int
	requests  []RecordedRequest
	pageSize  int
	validator Validator
	swagger   bool
	secret    string
}

// Option configures a Server.
type Option func(*Server)

// WithPageSize returns paginated envelopes of at most size results. Zero
// returns plain arrays.
func WithPageSize(size int) Option {
	return func(s *Server) {
		s.pageSize = size
	}
}

// WithValidator sets the payload validator.
func WithValidator(validator Validator) Option {
	return func(s *Server) {
		s.validator = validator
	}
}

// WithSwagger2 publishes the schema as Swagger 2.0.
func WithSwagger2() Option {
	return func(s *Server) {
		s.swagger = true
	}
}

// WithSecret requires every API request to carry a JWT signed with secret.
// The schema stays public.
func WithSecret(secret string) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// NewServer starts a fake API serving resources. Close it when done.
func NewServer(resources []Resource, opts ...Option) *Server {
	server := &Server{
		resources: make(map[string]Resource),
		objects:   make(map[string]map[string]map[string]interface{}),
		order:     make(map[string][]string),
	}

	for _, resource := range resources {
		if resource.Actions == nil {
			resource.Actions = defaultActions
		}

		server.resources[resource.Collection] = resource
		server.objects[resource.Collection] = make(map[string]map[string]interface{})
	}

	for _, opt := range opts {
		opt(server)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+BasePath+"/schema/openapi.yaml", server.serveSchema)
	mux.HandleFunc("GET "+BasePath+"/{$}", server.serveRoot)
	mux.HandleFunc(BasePath+"/{collection}", server.serveCollection)
	mux.HandleFunc(BasePath+"/{collection}/{uuid}", server.serveObject)

	server.Server = httptest.NewServer(server.record(mux))

	return server
}

// BaseURL returns the API root URL with a trailing slash.
func (s *Server) BaseURL() string {
	return s.URL + BasePath + "/"
}

// Requests returns the requests received so far, including schema fetches.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]RecordedRequest(nil), s.requests...)
}

// APIRequests returns the received requests other than schema fetches.
func (s *Server) APIRequests() []RecordedRequest {
	var out []RecordedRequest

	for _, req := range s.Requests() {
		if !strings.HasSuffix(req.Path, "/schema/openapi.yaml") {
			out = append(out, req)
		}
	}

	return out
}

// Seed stores an object directly and returns its URL.
func (s *Server) Seed(collection string, data map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store(collection, data)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        request.Method,
			Path:          request.URL.Path,
			Query:         request.URL.RawQuery,
			Authorization: request.Header.Get("Authorization"),
			AcceptCrs:     request.Header.Get("Accept-Crs"),
		})
		s.mu.Unlock()

		if !public(request.URL.Path) && !s.authorized(request) {
			writeError(writer, &ErrorBody{
				Status: http.StatusForbidden,
				Code:   "not_authenticated",
				Title:  "Authenticatiegegevens zijn niet opgegeven.",
			})

			return
		}

		next.ServeHTTP(writer, request)
	})
}

// public reports whether path is served without credentials.
func public(path string) bool {
	return path == BasePath+"/" || strings.HasSuffix(path, "/schema/openapi.yaml")
}

func (s *Server) authorized(request *http.Request) bool {
	if s.secret == "" {
		return true
	}

	raw, ok := strings.CutPrefix(request.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}

	_, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return []byte(s.secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	return err == nil
}

// serveRoot lists the collections, like the browsable API root.
func (s *Server) serveRoot(writer http.ResponseWriter, _ *http.Request) {
	links := make(map[string]string, len(s.resources))
	for collection := range s.resources {
		links[collection] = s.URL + BasePath + "/" + collection
	}

	writeJSON(writer, http.StatusOK, links)
}

func (s *Server) serveSchema(writer http.ResponseWriter, request *http.Request) {
	doc := s.document()

	writer.Header().Set("Content-Type", "application/yaml")
	_ = yaml.NewEncoder(writer).Encode(doc)
}

func (s *Server) document() map[string]interface{} {
	paths := make(map[string]interface{})

	for collection, resource := range s.resources {
		list := make(map[string]interface{})
		detail := make(map[string]interface{})

		for _, action := range resource.Actions {
			operation := map[string]interface{}{"operationId": resource.Name + "_" + action}

			switch action {
			case "list":
				list["get"] = operation
			case "create":
				list["post"] = operation
			case "read":
				detail["get"] = operation
			case "update":
				detail["put"] = operation
			case "partial_update":
				detail["patch"] = operation
			case "delete":
				detail["delete"] = operation
			}
		}

		if len(list) > 0 {
			paths["/"+collection] = list
		}

		if len(detail) > 0 {
			detail["parameters"] = []map[string]interface{}{{"name": "uuid", "in": "path", "required": true}}
			paths["/"+collection+"/{uuid}"] = detail
		}
	}

	if s.swagger {
		return map[string]interface{}{
			"swagger":  "2.0",
			"host":     strings.TrimPrefix(s.URL, "http://"),
			"basePath": BasePath,
			"schemes":  []string{"http"},
			"paths":    paths,
		}
	}

	return map[string]interface{}{
		"openapi": "3.0.0",
		"servers": []map[string]interface{}{{"url": BasePath}},
		"paths":   paths,
	}
}

func (s *Server) serveCollection(writer http.ResponseWriter, request *http.Request) {
	collection := request.PathValue("collection")

	s.mu.Lock()
	defer s.mu.Unlock()

	resource, ok := s.resources[collection]
	if !ok {
		writeError(writer, &ErrorBody{Status: http.StatusNotFound, Code: "not_found", Title: "Niet gevonden."})

		return
	}

	switch request.Method {
	case http.MethodGet:
		s.list(writer, request, collection)
	case http.MethodPost:
		data, ok := s.decode(writer, request, resource.Name)
		if !ok {
			return
		}

		objectURL := s.store(collection, data)
		writeJSON(writer, http.StatusCreated, s.objects[collection][uuidOf(objectURL)])
	default:
		writer.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveObject(writer http.ResponseWriter, request *http.Request) {
	collection := request.PathValue("collection")
	id := request.PathValue("uuid")

	s.mu.Lock()
	defer s.mu.Unlock()

	resource, known := s.resources[collection]

	object, ok := s.objects[collection][id]
	if !known || !ok {
		writeError(writer, &ErrorBody{Status: http.StatusNotFound, Code: "not_found", Title: "Niet gevonden."})

		return
	}

	switch request.Method {
	case http.MethodGet:
		writeJSON(writer, http.StatusOK, object)
	case http.MethodPut, http.MethodPatch:
		data, valid := s.decode(writer, request, resource.Name)
		if !valid {
			return
		}

		if request.Method == http.MethodPut {
			object = map[string]interface{}{"url": object["url"], "uuid": object["uuid"]}
		}

		for key, value := range data {
			if key != "url" && key != "uuid" {
				object[key] = value
			}
		}

		s.objects[collection][id] = object
		writeJSON(writer, http.StatusOK, object)
	case http.MethodDelete:
		delete(s.objects[collection], id)

		order := s.order[collection][:0]
		for _, existing := range s.order[collection] {
			if existing != id {
				order = append(order, existing)
			}
		}

		s.order[collection] = order
		writer.WriteHeader(http.StatusNoContent)
	default:
		writer.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) list(writer http.ResponseWriter, request *http.Request, collection string) {
	results := make([]map[string]interface{}, 0, len(s.order[collection]))

	for _, id := range s.order[collection] {
		object := s.objects[collection][id]
		if matches(object, request.URL.Query()) {
			results = append(results, object)
		}
	}

	if s.pageSize <= 0 {
		writeJSON(writer, http.StatusOK, results)

		return
	}

	page, err := strconv.Atoi(request.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	start := (page - 1) * s.pageSize
	end := min(start+s.pageSize, len(results))
	start = min(start, end)

	envelope := map[string]interface{}{
		"count":    len(results),
		"next":     nil,
		"previous": nil,
		"results":  results[start:end],
	}

	pageURL := func(number int) string {
		query := request.URL.Query()
		query.Set("page", strconv.Itoa(number))

		return s.URL + request.URL.Path + "?" + query.Encode()
	}

	if end < len(results) {
		envelope["next"] = pageURL(page + 1)
	}

	if page > 1 {
		envelope["previous"] = pageURL(page - 1)
	}

	writeJSON(writer, http.StatusOK, envelope)
}

func (s *Server) decode(writer http.ResponseWriter, request *http.Request, resource string) (map[string]interface{}, bool) {
	data := make(map[string]interface{})

	err := json.NewDecoder(request.Body).Decode(&data)
	if err != nil {
		writeError(writer, &ErrorBody{Status: http.StatusBadRequest, Code: "parse_error", Title: err.Error()})

		return nil, false
	}

	if s.validator != nil {
		if body := s.validator(resource, data); body != nil {
			writeError(writer, body)

			return nil, false
		}
	}

	return data, true
}

// store must be called with s.mu held.
func (s *Server) store(collection string, data map[string]interface{}) string {
	s.nextID++
	id := fmt.Sprintf("00000000-0000-4000-8000-%012d", s.nextID)
	objectURL := s.URL + BasePath + "/" + collection + "/" + id

	object := make(map[string]interface{}, len(data)+2)
	for key, value := range data {
		object[key] = value
	}

	object["url"] = objectURL
	object["uuid"] = id

	s.objects[collection][id] = object
	s.order[collection] = append(s.order[collection], id)

	return objectURL
}

// matches applies query parameters as exact-match filters on string fields.
// The page parameter is not a filter.
func matches(object map[string]interface{}, query map[string][]string) bool {
	for key, values := range query {
		if key == "page" {
			continue
		}

		value, _ := object[key].(string)
		if value != values[0] {
			return false
		}
	}

	return true
}

func uuidOf(objectURL string) string {
	return objectURL[strings.LastIndex(objectURL, "/")+1:]
}

func writeJSON(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(body)
}

func writeError(writer http.ResponseWriter, body *ErrorBody) {
	writeJSON(writer, body.Status, body)
}
