// Package docs is generated by swag init from the handler annotations.
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
        "/events": {
            "get": {
                "tags": ["events"],
                "summary": "List events",
                "parameters": [
                    {"enum": ["vigente", "transcurrido", "cancelado"], "type": "string", "name": "state", "in": "query"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "data contains items and pagination"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Create an event",
                "responses": {"201": {"description": "data contains the created event"}}
            }
        },
        "/events/{eventID}": {
            "get": {
                "tags": ["events"],
                "summary": "Get an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "data contains event and subgroups"}}
            },
            "patch": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Update an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "data contains event and promotions"}}
            }
        },
        "/events/{eventID}/cancel": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Cancel an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/events/{eventID}/subgroups/{subgroupID}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Update a subgroup capacity pool",
                "parameters": [
                    {"type": "string", "name": "eventID", "in": "path", "required": true},
                    {"type": "string", "name": "subgroupID", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "data contains subgroup and promotions"}}
            }
        },
        "/events/{eventID}/enrollments": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["enrollments"],
                "summary": "Enroll in an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"201": {"description": "data.placement is titular or alternate"}}
            }
        },
        "/events/{eventID}/enrollments/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["enrollments"],
                "summary": "Get my enrollment in an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "data contains the enrollment"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["enrollments"],
                "summary": "Withdraw from an event",
                "parameters": [
                    {"type": "string", "name": "eventID", "in": "path", "required": true},
                    {"type": "string", "name": "subgroup_id", "in": "query"}
                ],
                "responses": {"200": {"description": "data.promotion is set when an alternate was promoted"}}
            }
        },
        "/events/{eventID}/enrollments/{userID}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["enrollments"],
                "summary": "Remove a user's enrollment",
                "parameters": [
                    {"type": "string", "name": "eventID", "in": "path", "required": true},
                    {"type": "string", "name": "userID", "in": "path", "required": true},
                    {"type": "string", "name": "subgroup_id", "in": "query"}
                ],
                "responses": {"200": {"description": "data.promotion is set when an alternate was promoted"}}
            }
        },
        "/events/{eventID}/capacity": {
            "get": {
                "tags": ["enrollments"],
                "summary": "Capacity of an event or subgroup",
                "parameters": [
                    {"type": "string", "name": "eventID", "in": "path", "required": true},
                    {"type": "string", "name": "subgroup_id", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/events/{eventID}/alternates": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["enrollments"],
                "summary": "List the waitlist",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/events/{eventID}/alternates/{userID}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["enrollments"],
                "summary": "Remove an alternate from the waitlist",
                "parameters": [
                    {"type": "string", "name": "eventID", "in": "path", "required": true},
                    {"type": "string", "name": "userID", "in": "path", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/events/{eventID}/titulars": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["enrollments"],
                "summary": "List titulars",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/me/enrollments": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["enrollments"],
                "summary": "List my enrollments",
                "responses": {"200": {"description": "data contains items and pagination"}}
            }
        },
        "/webhooks/payments": {
            "post": {
                "tags": ["payments"],
                "summary": "Payment confirmation webhook",
                "parameters": [{"type": "string", "name": "X-Signature", "in": "header"}],
                "responses": {"200": {"description": "data.outcome is enrolled, already_processed or ignored"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT Bearer token. Example: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Community Events API",
	Description:      "Event enrollment with titular seats, waitlists and alternate promotion.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
