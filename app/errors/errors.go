package errors

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
)

// Log logs err using the default slog logger. The cause and metadata of a
// StructuredError are logged as attributes, with metadata keys in sorted
// order.
func Log(err error) {
	var serr *StructuredError
	if !errors.As(err, &serr) {
		slog.Error(err.Error())
		return
	}

	md := serr.Metadata()
	args := make([]any, 0, len(md)*2+2)
	if cause := serr.Cause(); cause != nil {
		args = append(args, "cause", cause)
	}
	for _, k := range slices.Sorted(maps.Keys(md)) {
		args = append(args, k, md[k])
	}

	slog.Error(serr.Error(), args...)
}
