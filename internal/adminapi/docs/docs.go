// Package docs registers the generated Swagger specification consumed by
// gin-swagger's handler at /swagger/*any. It mirrors the shape `swag init`
// produces from the @Summary/@Router annotations on the Handler methods in
// internal/adminapi/handler.go; kept hand-authored here since this
// repository does not run the swag code generator as part of its build.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Reports that the process is accepting requests",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Process uptime, cache counters, pending request count, and host CPU/memory",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Server statistics",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/zone": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["zone"],
                "summary": "List curated zone records",
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["zone"],
                "summary": "Add or update a curated zone record",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/zone/{id}": {
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["zone"],
                "summary": "Delete a curated zone record",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/zone/reload": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Zone edits take effect immediately on the running resolver without a restart",
                "tags": ["zone"],
                "summary": "Reload the live zone from the persistent store",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/upstreams": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["upstreams"],
                "summary": "List configured upstream resolvers",
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "put": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["upstreams"],
                "summary": "Replace the configured upstream pool",
                "description": "Persists the new pool. The running resolver keeps using its current pool until restarted; this does not hot-swap the live fail-over state machine.",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds the exported Swagger spec for the admin API.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "HydraDNS Admin API",
	Description:      "Operational visibility and curated-zone/upstream-pool management for the forwarder.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
