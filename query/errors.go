package query

import "github.com/goliatone/go-webhooks/core"

func queryDependencyError(message string) error {
	return core.DependencyError("query", message)
}

func queryValidationError(field string, message string) error {
	return core.ValidationError(field, message).
		WithMetadata(map[string]any{"layer": "query"})
}
