package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Batch Enrollment API",
        "description": "Batch capacity, enrollment approvals and reconciled public section documents.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Sections", "description": "Public section documents and their reconciliation"},
        {"name": "Batches", "description": "Class batches and seat capacity"},
        {"name": "Enrollment Requests", "description": "Applicant requests and approval workflow"},
        {"name": "Display Items", "description": "Cards behind the display carousel"},
        {"name": "Cache", "description": "Response cache administration"}
    ],
    "paths": {
        "/sections": {
            "get": {
                "tags": ["Sections"],
                "summary": "List section documents",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{name}": {
            "get": {
                "tags": ["Sections"],
                "summary": "Get section document",
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches": {
            "get": {
                "tags": ["Batches"],
                "summary": "List open batches",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollment-requests": {
            "post": {
                "tags": ["Enrollment Requests"],
                "summary": "Submit an enrollment request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEnrollmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Batch not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate contact or batch full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/enrollment-requests": {
            "get": {
                "tags": ["Enrollment Requests"],
                "summary": "List enrollment requests",
                "parameters": [
                    {"name": "batch", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "approved", "rejected"]},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/enrollment-requests/{id}": {
            "get": {
                "tags": ["Enrollment Requests"],
                "summary": "Get enrollment request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Enrollment Requests"],
                "summary": "Edit an enrollment request",
                "description": "Changing batch_name reassigns the request; approved requests move their seat.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateEnrollmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Enrollment Requests"],
                "summary": "Delete an enrollment request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/admin/enrollment-requests/{id}/status": {
            "patch": {
                "tags": ["Enrollment Requests"],
                "summary": "Approve or reject an enrollment request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetEnrollmentStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Batch full, inactive or invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Capacity invariant violated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/batches": {
            "get": {
                "tags": ["Batches"],
                "summary": "List batches",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Batches"],
                "summary": "Create batch",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateBatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Name taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/batches/{id}": {
            "get": {
                "tags": ["Batches"],
                "summary": "Get batch",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Batches"],
                "summary": "Update batch",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateBatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Capacity below enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Batches"],
                "summary": "Delete batch",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Batch still has approved enrollments", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/batches/{id}/roster": {
            "get": {
                "tags": ["Batches"],
                "summary": "Download batch roster",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {
                    "200": {"description": "Roster file", "schema": {"type": "file"}}
                }
            }
        },
        "/admin/display-items": {
            "get": {
                "tags": ["Display Items"],
                "summary": "List display items",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Display Items"],
                "summary": "Create display item",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DisplayItemRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/display-items/{id}": {
            "put": {
                "tags": ["Display Items"],
                "summary": "Update display item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DisplayItemRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Display Items"],
                "summary": "Delete display item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/admin/sections/{name}": {
            "put": {
                "tags": ["Sections"],
                "summary": "Replace a content section",
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PutSectionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Section is generated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/sections/{name}/reconcile": {
            "post": {
                "tags": ["Sections"],
                "summary": "Regenerate a section from its sources",
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string", "enum": ["ongoingBatches", "displayCarousel"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown section", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/sections/{name}/records/{recordId}": {
            "patch": {
                "tags": ["Sections"],
                "summary": "Override fields of one section record",
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"},
                    {"name": "recordId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ViewRecordPatch"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Record not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/cache": {
            "delete": {
                "tags": ["Cache"],
                "summary": "Invalidate cached responses",
                "parameters": [
                    {"name": "pattern", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/metrics": {
            "get": {
                "tags": ["Cache"],
                "summary": "Instrumentation summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateEnrollmentRequest": {
            "type": "object",
            "required": ["full_name", "contact", "batch_name"],
            "properties": {
                "full_name": {"type": "string"},
                "contact": {"type": "string"},
                "email": {"type": "string"},
                "batch_name": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "UpdateEnrollmentRequest": {
            "type": "object",
            "properties": {
                "full_name": {"type": "string"},
                "contact": {"type": "string"},
                "email": {"type": "string"},
                "batch_name": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "SetEnrollmentStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["pending", "approved", "rejected"]},
                "notes": {"type": "string"}
            }
        },
        "CreateBatchRequest": {
            "type": "object",
            "required": ["name", "subject", "capacity"],
            "properties": {
                "external_id": {"type": "string"},
                "name": {"type": "string"},
                "subject": {"type": "string"},
                "capacity": {"type": "integer", "minimum": 1},
                "is_active": {"type": "boolean"}
            }
        },
        "UpdateBatchRequest": {
            "type": "object",
            "properties": {
                "external_id": {"type": "string"},
                "name": {"type": "string"},
                "subject": {"type": "string"},
                "capacity": {"type": "integer", "minimum": 1},
                "is_active": {"type": "boolean"}
            }
        },
        "DisplayItemRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "subtitle": {"type": "string"},
                "description": {"type": "string"},
                "image_url": {"type": "string"},
                "link_url": {"type": "string"},
                "position": {"type": "integer"},
                "is_active": {"type": "boolean"}
            }
        },
        "PutSectionRequest": {
            "type": "object",
            "required": ["payload"],
            "properties": {
                "payload": {"type": "object"}
            }
        },
        "ViewRecordPatch": {
            "type": "object",
            "properties": {
                "hidden": {"type": "boolean"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "color": {"type": "string"},
                "is_active": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
