// Package docs registers the OpenAPI document served under /swagger.
//
// openapi.json mirrors the godoc annotations on the HTTP handlers; update
// both together. The router tests fail when a documented operation has no
// matching route.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag/v2"
)

//go:embed openapi.json
var docTemplate string

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Title:            "Cash Flow Forecast API",
	Description:      "Invoice payment prediction and cash inflow forecasting",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
