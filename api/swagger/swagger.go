package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Defense Scheduler API",
        "description": "Thesis defense scheduling with a genetic optimizer",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Defense Schedules", "description": "Optimization runs, proposals and saved schedules"},
        {"name": "Metrics", "description": "Runtime metrics"}
    ],
    "paths": {
        "/defense-schedules/optimize": {
            "post": {
                "tags": ["Defense Schedules"],
                "summary": "Run the optimizer synchronously",
                "parameters": [
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/OptimizeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid input", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No schedule could be produced", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/defense-schedules/jobs": {
            "post": {
                "tags": ["Defense Schedules"],
                "summary": "Queue an optimization run",
                "parameters": [
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/OptimizeRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/defense-schedules/proposals/{id}": {
            "get": {
                "tags": ["Defense Schedules"],
                "summary": "Get a proposal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found or expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/defense-schedules/proposals/{id}/export": {
            "get": {
                "tags": ["Defense Schedules"],
                "summary": "Export a proposal",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/defense-schedules/save": {
            "post": {
                "tags": ["Defense Schedules"],
                "summary": "Persist a proposal as a versioned schedule",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveDefenseScheduleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Proposal not ready or has critical conflicts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/defense-schedules": {
            "get": {
                "tags": ["Defense Schedules"],
                "summary": "List saved schedules",
                "parameters": [
                    {"name": "label", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["DRAFT", "PUBLISHED", "ARCHIVED"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/defense-schedules/{id}/slots": {
            "get": {
                "tags": ["Defense Schedules"],
                "summary": "List the slots of a saved schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/defense-schedules/{id}": {
            "delete": {
                "tags": ["Defense Schedules"],
                "summary": "Delete a draft schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Cache, request and optimizer metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "OptimizeOptions": {
            "type": "object",
            "properties": {
                "population_size": {"type": "integer"},
                "generations": {"type": "integer"},
                "mutation_rate": {"type": "number"},
                "crossover_rate": {"type": "number"},
                "elite_count": {"type": "integer"},
                "selection": {"type": "string", "enum": ["tournament", "roulette"]},
                "crossover": {"type": "string", "enum": ["uniform", "single_point"]},
                "coverage_policy": {"type": "string", "enum": ["coverage_first", "conflict_free"]},
                "enable_local_search": {"type": "boolean"},
                "enable_gap_filling": {"type": "boolean"},
                "enable_early_shift": {"type": "boolean"},
                "max_duration_seconds": {"type": "integer"},
                "seed": {"type": "integer"}
            }
        },
        "OptimizeRequest": {
            "type": "object",
            "properties": {
                "label": {"type": "string"},
                "dataset": {"$ref": "#/definitions/DefenseDataset"},
                "options": {"$ref": "#/definitions/OptimizeOptions"}
            }
        },
        "DefenseDataset": {
            "type": "object",
            "properties": {
                "projects": {"type": "array", "items": {"$ref": "#/definitions/Project"}},
                "instructors": {"type": "array", "items": {"$ref": "#/definitions/Instructor"}},
                "classrooms": {"type": "array", "items": {"$ref": "#/definitions/Classroom"}},
                "timeslots": {"type": "array", "items": {"$ref": "#/definitions/Timeslot"}}
            }
        },
        "Project": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "type": {"type": "string", "enum": ["midterm", "final"]},
                "responsible_id": {"type": "string"},
                "is_makeup": {"type": "boolean"}
            },
            "required": ["id", "type", "responsible_id"]
        },
        "Instructor": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "category": {"type": "string", "enum": ["faculty", "assistant"]}
            },
            "required": ["id"]
        },
        "Classroom": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "capacity": {"type": "integer"}
            },
            "required": ["id"]
        },
        "Timeslot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"},
                "capacity": {"type": "integer"}
            },
            "required": ["id"]
        },
        "SaveDefenseScheduleRequest": {
            "type": "object",
            "properties": {
                "proposal_id": {"type": "string"},
                "label": {"type": "string"}
            },
            "required": ["proposal_id"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
