// Package logging provides structured logging for the workbench.
package logging

// Field names shared across packages.
const (
	FieldRunID      = "run_id"
	FieldAction     = "action"
	FieldKind       = "kind"
	FieldType       = "type"
	FieldName       = "name"
	FieldOrg        = "organization"
	FieldMoid       = "moid"
	FieldOutcome    = "outcome"
	FieldSheet      = "sheet"
	FieldRow        = "row"
	FieldFile       = "file"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldAttempt    = "attempt"
	FieldCount      = "count"
	FieldHost       = "host"
	FieldKeyID      = "key_id"
)
