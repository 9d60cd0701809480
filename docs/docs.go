// Package docs registers the OpenAPI description served under /docs.
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
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/whatsapp/status": {"get": {"tags": ["whatsapp"], "summary": "Session status", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/whatsapp/pairing-code": {"get": {"tags": ["whatsapp"], "summary": "Pairing code for linking the account", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "202": {"description": "Code not issued yet"}}}},
        "/whatsapp/force-new-session": {"post": {"tags": ["whatsapp"], "summary": "Discard the stored credentials and start a new session", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/whatsapp/logout": {"post": {"tags": ["whatsapp"], "summary": "Log the session out and forget its credentials", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/whatsapp/queue": {"get": {"tags": ["whatsapp"], "summary": "Session bring-up queue", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/campaigns": {
            "get": {"tags": ["campaigns"], "summary": "List campaigns", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "page", "in": "query"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["campaigns"], "summary": "Create a campaign", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/campaigns/{id}": {"get": {"tags": ["campaigns"], "summary": "Campaign detail with stats and cursor", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/campaigns/{id}/messages": {"get": {"tags": ["campaigns"], "summary": "Message records of a campaign", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}, {"type": "integer", "name": "page", "in": "query"}], "responses": {"200": {"description": "OK"}}}},
        "/campaigns/{id}/start": {"post": {"tags": ["campaigns"], "summary": "Make a pending campaign eligible now", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/campaigns/{id}/pause": {"post": {"tags": ["campaigns"], "summary": "Pause a campaign", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/campaigns/{id}/resume": {"post": {"tags": ["campaigns"], "summary": "Resume a paused campaign", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/campaigns/{id}/cancel": {"post": {"tags": ["campaigns"], "summary": "Cancel a campaign", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/auto-responses": {
            "get": {"tags": ["auto-responses"], "summary": "List auto-response rules", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["auto-responses"], "summary": "Create an auto-response rule", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/auto-responses/{id}": {
            "put": {"tags": ["auto-responses"], "summary": "Replace an auto-response rule", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["auto-responses"], "summary": "Delete an auto-response rule", "security": [{"BearerAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/events/ws": {"get": {"tags": ["events"], "summary": "Live events of the account", "security": [{"BearerAuth": []}], "responses": {"101": {"description": "Switching Protocols"}}}},
        "/admin/reconcile": {"post": {"tags": ["admin"], "summary": "Return stale running campaigns to pending", "parameters": [{"type": "string", "name": "admin_key", "in": "header", "required": true}], "responses": {"200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "WhatsApp Campaign Dispatcher API",
	Description:      "Bulk campaign dispatch, session management and auto-responses over WhatsApp.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
