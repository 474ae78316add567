package validator

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"ad-assistant/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator validates requests and responses against OpenAPI specification
type OpenAPIValidator struct {
	swagger    *openapi3.T
	router     routers.Router
	schemaPath string
	mutex      sync.RWMutex
}

// NewOpenAPIValidator creates a new OpenAPI validator
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	swagger, router, err := load(schemaPath)
	if err != nil {
		return nil, err
	}
	return &OpenAPIValidator{
		swagger:    swagger,
		router:     router,
		schemaPath: schemaPath,
	}, nil
}

func load(path string) (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", path, err)
	}
	if err := swagger.Validate(loader.Context); err != nil {
		return nil, nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	// Match on paths only; the schema does not pin a host
	swagger.Servers = nil
	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}
	return swagger, router, nil
}

// ReloadSchema reloads the OpenAPI schema from disk
func (v *OpenAPIValidator) ReloadSchema() error {
	swagger, router, err := load(v.schemaPath)
	if err != nil {
		return err
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.swagger = swagger
	v.router = router
	return nil
}

func (v *OpenAPIValidator) input(r *http.Request) (*openapi3filter.RequestValidationInput, bool) {
	v.mutex.RLock()
	router := v.router
	v.mutex.RUnlock()

	route, pathParams, err := router.FindRoute(r)
	if err != nil {
		return nil, false
	}
	return &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			MultiError:         false,
		},
	}, true
}

// Middleware returns a Gin middleware function that validates requests
// against the OpenAPI schema. Routes the schema does not describe pass
// through unchecked.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		in, ok := v.input(c.Request)
		if !ok {
			c.Next()
			return
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), in); err != nil {
			c.Error(errors.BadRequestWithDetails(errors.CodeValidationFailed, "Request does not match the API schema", err.Error()))
			c.Abort()
			return
		}

		c.Next()
	}
}

// ValidateResponse checks a recorded response against the schema for the
// request that produced it
func (v *OpenAPIValidator) ValidateResponse(r *http.Request, status int, header http.Header, body []byte) error {
	in, ok := v.input(r)
	if !ok {
		return nil
	}
	return openapi3filter.ValidateResponse(r.Context(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: in,
		Status:                 status,
		Header:                 header,
		Body:                   io.NopCloser(bytes.NewReader(body)),
	})
}
