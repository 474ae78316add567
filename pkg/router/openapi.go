package router

import (
	"fmt"
	"os"

	"ad-assistant/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// SchemaRoute serves the API schema the router validates against
const SchemaRoute = "/api/openapi.yaml"

// AddOpenAPIValidation validates every request the schema describes and
// publishes the schema itself. Gin only applies middleware to routes
// registered after it, so this has to run before SetupRoutes.
func (r *Router) AddOpenAPIValidation(schemaPath string) error {
	if _, err := os.Stat(schemaPath); err != nil {
		return fmt.Errorf("openapi schema %s: %w", schemaPath, err)
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		return err
	}
	r.Validator = v

	r.Engine.Use(v.Middleware())
	r.Engine.GET(SchemaRoute, func(c *gin.Context) {
		c.Header("Content-Type", "application/yaml")
		c.File(schemaPath)
	})

	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath, "url", SchemaRoute)
	return nil
}
