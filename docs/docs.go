// Package docs registers the OpenAPI document of the membership card API with swag.
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
        "/api/v1/wizard/sessions": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Wizard"],
                "summary": "Start or resume a wizard session",
                "responses": {"200": {"description": "Session started", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}
            }
        },
        "/api/v1/wizard/state": {
            "get": {
                "security": [{"SessionToken": []}],
                "produces": ["application/json"],
                "tags": ["Wizard"],
                "summary": "Get wizard state",
                "parameters": [{"type": "boolean", "name": "include_photo", "in": "query"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}
            }
        },
        "/api/v1/wizard/details": {
            "put": {
                "security": [{"SessionToken": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Wizard"],
                "summary": "Update details",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.UpdateDetailsRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}
            }
        },
        "/api/v1/wizard/details/next": {
            "post": {
                "security": [{"SessionToken": []}],
                "tags": ["Wizard"],
                "summary": "Leave the Details step",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                    "422": {"description": "Every rejected field", "schema": {"$ref": "#/definitions/dto.APIResponse"}}
                }
            }
        },
        "/api/v1/wizard/photo/upload": {
            "post": {
                "security": [{"SessionToken": []}],
                "consumes": ["multipart/form-data"],
                "tags": ["Wizard"],
                "summary": "Upload a profile photo",
                "parameters": [{"type": "file", "name": "file", "in": "formData", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}
            }
        },
        "/api/v1/wizard/photo/capture": {
            "post": {
                "security": [{"SessionToken": []}],
                "consumes": ["multipart/form-data"],
                "tags": ["Wizard"],
                "summary": "Capture a profile photo",
                "parameters": [
                    {"type": "file", "name": "frame", "in": "formData", "required": true},
                    {"type": "string", "default": "user", "name": "facing", "in": "formData"},
                    {"type": "boolean", "name": "torch", "in": "formData"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}
            }
        },
        "/api/v1/wizard/photo/next": {
            "post": {"security": [{"SessionToken": []}], "tags": ["Wizard"], "summary": "Leave the photo step", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/wizard/cards": {
            "get": {"security": [{"SessionToken": []}], "tags": ["Wizard"], "summary": "List card designs", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/wizard/cards/move": {
            "post": {
                "security": [{"SessionToken": []}],
                "tags": ["Wizard"],
                "summary": "Move the card carousel",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.MoveCardRequest"}}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/wizard/submit": {
            "post": {
                "security": [{"SessionToken": []}],
                "tags": ["Wizard"],
                "summary": "Submit the membership",
                "responses": {"200": {"description": "Membership created"}, "409": {"description": "Submission already in progress"}, "502": {"description": "Gagal membuat membership"}}
            }
        },
        "/api/v1/wizard/back": {"post": {"security": [{"SessionToken": []}], "tags": ["Wizard"], "summary": "Go back one step", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/wizard/back-to-form": {"post": {"security": [{"SessionToken": []}], "tags": ["Wizard"], "summary": "Back to the form", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/wizard/start-over": {"post": {"security": [{"SessionToken": []}], "tags": ["Wizard"], "summary": "Start over", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/wizard/card/download": {
            "get": {"security": [{"SessionToken": []}], "produces": ["image/png"], "tags": ["Wizard"], "summary": "Download the membership card", "responses": {"200": {"description": "PNG card"}, "404": {"description": "No membership yet"}}}
        },
        "/api/proxy-image": {
            "get": {
                "tags": ["Proxy"],
                "summary": "Proxy a remote image",
                "parameters": [{"type": "string", "name": "url", "in": "query", "required": true}],
                "responses": {"200": {"description": "Image bytes"}, "400": {"description": "Image URL is required"}}
            },
            "options": {"tags": ["Proxy"], "summary": "Image proxy preflight", "responses": {"204": {"description": "No Content"}}}
        },
        "/api/v1/admin/memberships": {
            "get": {"security": [{"AdminKey": []}], "tags": ["Admin Memberships"], "summary": "Admin List Memberships", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/admin/memberships/export": {
            "get": {"security": [{"AdminKey": []}], "tags": ["Admin Memberships"], "summary": "Admin Export Memberships", "responses": {"200": {"description": "XLSX workbook"}}}
        }
    },
    "definitions": {
        "dto.APIResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "data": {},
                "error": {"$ref": "#/definitions/dto.ErrorDetail"}
            }
        },
        "dto.ErrorDetail": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "details": {}}
        },
        "dto.UpdateDetailsRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "Siti Rahmawati"},
                "phone": {"type": "string", "example": "081234567890"},
                "email": {"type": "string", "example": "siti@example.com"},
                "birthday": {"type": "string", "example": "1999-05-17"}
            }
        },
        "dto.MoveCardRequest": {
            "type": "object",
            "required": ["direction"],
            "properties": {
                "direction": {"type": "string", "enum": ["next", "prev", "select"]},
                "index": {"type": "integer", "minimum": 0}
            }
        }
    },
    "securityDefinitions": {
        "SessionToken": {"type": "apiKey", "name": "Authorization", "in": "header"},
        "AdminKey": {"type": "apiKey", "name": "X-Admin-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Kartu Tanda Boga API",
	Description:      "Membership card signup wizard: details, photo, card design and membership creation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
