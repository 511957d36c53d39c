package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the API description.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>collabdocs API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "collabdocs", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "error": { "type": "string" } } },
      "Document": {
        "type": "object",
        "properties": {
          "id": { "type": "string" },
          "title": { "type": "string" },
          "content": { "type": "string" },
          "owner": { "type": "object", "properties": { "id": { "type": "string" }, "name": { "type": "string" }, "email": { "type": "string" } } },
          "collaborators": { "type": "array", "items": { "type": "object", "properties": { "user": { "type": "string" }, "permission": { "type": "string", "enum": ["viewer", "editor"] }, "addedAt": { "type": "string", "format": "date-time" } } } },
          "permission": { "type": "string", "enum": ["viewer", "editor", "owner"] },
          "createdAt": { "type": "string", "format": "date-time" },
          "updatedAt": { "type": "string", "format": "date-time" }
        }
      }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/documents": {
      "get": { "summary": "List owned then shared documents", "responses": { "200": { "description": "documents" } } },
      "post": { "summary": "Create a document", "requestBody": { "content": { "application/json": { "schema": { "type": "object", "properties": { "title": { "type": "string" } } } } } }, "responses": { "201": { "description": "created" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document (viewer)", "responses": { "200": { "description": "document" }, "403": { "description": "Access denied" }, "404": { "description": "Document not found" } } },
      "delete": { "summary": "Delete a document (owner)", "responses": { "200": { "description": "Document deleted successfully" }, "403": { "description": "Only owner can perform this action" } } }
    },
    "/api/documents/{id}/content": {
      "put": { "summary": "Overwrite content (editor)", "requestBody": { "content": { "application/json": { "schema": { "type": "object", "properties": { "content": { "type": "string" } } } } } }, "responses": { "200": { "description": "document" }, "403": { "description": "Editor permission required" } } }
    },
    "/api/documents/{id}/title": {
      "put": { "summary": "Rename (owner)", "requestBody": { "content": { "application/json": { "schema": { "type": "object", "properties": { "title": { "type": "string" } } } } } }, "responses": { "200": { "description": "document" }, "400": { "description": "Title cannot be empty" } } }
    },
    "/api/documents/{id}/share": {
      "post": { "summary": "Grant or change a collaborator (owner)", "requestBody": { "content": { "application/json": { "schema": { "type": "object", "properties": { "email": { "type": "string" }, "permission": { "type": "string", "enum": ["viewer", "editor"] } } } } } }, "responses": { "200": { "description": "document" }, "400": { "description": "validation error" } } }
    },
    "/api/documents/{id}/share/{email}": {
      "delete": { "summary": "Revoke a collaborator (owner)", "responses": { "200": { "description": "document" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get user info", "responses": { "200": { "description": "user" } } }
    },
    "/api/auth/logout": {
      "post": { "summary": "Blacklist the presented access token", "responses": { "200": { "description": "logged out" } } }
    },
    "/ws": {
      "get": { "summary": "Collaboration websocket (token via ?token= or bearer header)", "responses": { "101": { "description": "switching protocols" }, "401": { "description": "Authentication error" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`
