// Package docs registers the OpenAPI description served under /swagger.
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
                "description": "Probes the configured dependencies",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.Report"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/server.Report"}}
                }
            }
        },
        "/tasks": {
            "get": {
                "description": "Lists the ETL tasks loaded from TASKS_PATH, sorted by name",
                "produces": ["application/json"],
                "tags": ["tasks"],
                "summary": "List tasks",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/router.TaskResponse"}}
                    }
                }
            }
        },
        "/tasks/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["tasks"],
                "summary": "Get task",
                "parameters": [
                    {"type": "string", "description": "Task name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/router.TaskResponse"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/tasks/{name}/run": {
            "get": {
                "description": "Runs the task and streams its output as server-sent events",
                "produces": ["text/event-stream"],
                "tags": ["tasks"],
                "summary": "Run task",
                "parameters": [
                    {"type": "string", "description": "Task name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "event stream", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "router.TaskResponse": {
            "type": "object",
            "properties": {
                "batch": {"type": "boolean"},
                "description": {"type": "string", "example": "Nightly customer import"},
                "extractor": {"type": "string", "example": "csv"},
                "loader": {"type": "string", "example": "pg"},
                "name": {"type": "string", "example": "customer_import"},
                "transformer": {"type": "string", "example": "mapping"}
            }
        },
        "server.Report": {
            "type": "object",
            "properties": {
                "checks": {"type": "object", "additionalProperties": {"type": "boolean"}},
                "healthy": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ETL Runner API",
	Description:      "Lists and runs extract-transform-load tasks",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
