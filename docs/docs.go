// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Rapilink Backend",
    "description": "Mirrors WispHub tickets into local workflow processes, escalates overdue work and scores the dispatch queue.",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "UserID": {"type": "apiKey", "in": "header", "name": "X-User-Id"},
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
  },
  "security": [{"UserID": []}],
  "tags": [
    {"name": "sync", "description": "Personal and global WispHub mirroring"},
    {"name": "workflow", "description": "Processes, steps and work items"},
    {"name": "escalation", "description": "Manual escalation and the timeout sweep"},
    {"name": "dispatch", "description": "Scored work queue"},
    {"name": "neighborhoods", "description": "Service-area neighborhoods and geocoding"}
  ],
  "paths": {}
}`

type doc struct{}

func (doc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, doc{})
}
