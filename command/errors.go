package command

import "github.com/goliatone/go-webhooks/core"

const errorLayer = "command"

func commandDependencyError(message string) error {
	return core.DependencyError(errorLayer, message)
}

// commandValidationError tags the field error with the command layer so a
// rejected message can be told apart from a service-side rejection.
func commandValidationError(field string, message string) error {
	return core.ValidationError(field, message).
		WithMetadata(map[string]any{"layer": errorLayer})
}
