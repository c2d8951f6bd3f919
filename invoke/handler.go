package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nrednav/cuid2"

	"go.hackfix.me/dbmigrate/migration"
)

// Runner performs migration operations. It's implemented by
// *migration.Migrator.
type Runner interface {
	Latest(ctx context.Context) (*migration.Result, error)
	To(ctx context.Context, name string) (*migration.Result, error)
	Reset(ctx context.Context) (*migration.Result, error)
	List(ctx context.Context) ([]migration.Status, error)
}

var _ Runner = (*migration.Migrator)(nil)

// MigratorFactory returns a Runner for the given database, or for the
// configured database if it's empty. The returned function releases the
// resources held by the Runner.
type MigratorFactory func(ctx context.Context, database string) (Runner, func() error, error)

// Handler serves invocation requests.
type Handler struct {
	newRunner MigratorFactory
	logger    *slog.Logger
}

// NewHandler returns a new Handler.
func NewHandler(newRunner MigratorFactory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{newRunner: newRunner, logger: logger.With("component", "invoke")}
}

type invocationIDKey struct{}

// WithInvocationID returns a copy of ctx carrying the given invocation ID,
// which is added to every log record of the invocation.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

// InvocationID returns the invocation ID carried by ctx, if any.
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey{}).(string) //nolint:errcheck // Zero value is fine.
	return id
}

// HandleJSON decodes and validates the JSON request payload, and handles it.
// The response is a value that can be serialized to JSON.
func (h *Handler) HandleJSON(ctx context.Context, payload []byte) (any, error) {
	req, err := ParseRequest(payload)
	if err != nil {
		return nil, err
	}

	return h.Handle(ctx, req)
}

// Handle runs the operation of the request.
//
// Requests of type "latest" and "to" without a name return the
// *migration.Result of the run, even if a step failed. A "to" request with a
// name fails with the first error of the run instead. Requests of type "list"
// return the []migration.Status of every registered migration.
func (h *Handler) Handle(ctx context.Context, req Request) (resp any, err error) {
	id := InvocationID(ctx)
	if id == "" {
		id = cuid2.Generate()
		ctx = WithInvocationID(ctx, id)
	}
	logger := h.logger.With("invocation_id", id, "type", req.Type)
	if req.Database != "" {
		logger = logger.With("database", req.Database)
	}

	switch req.Type {
	case "", TypeLatest, TypeTo, TypeList:
	default:
		err = &UnsupportedOperationError{Type: req.Type}
		logger.Error("rejected invocation", "error", err)
		return nil, err
	}

	logger.Debug("handling invocation")

	runner, closeRunner, err := h.newRunner(ctx, req.Database)
	if err != nil {
		err = fmt.Errorf("failed initializing migrator: %w", err)
		logger.Error("invocation failed", "error", err)
		return nil, err
	}
	defer func() {
		if cerr := closeRunner(); cerr != nil {
			logger.Warn("failed releasing migrator resources", "error", cerr)
			if err == nil {
				err = cerr
				resp = nil
			}
		}
	}()

	switch req.Type {
	case TypeList:
		resp, err = runner.List(ctx)
	case TypeTo:
		resp, err = h.to(ctx, runner, req.TargetName())
	default:
		resp, err = runner.Latest(ctx)
	}

	if err != nil {
		logger.Error("invocation failed", "error", err)
		return nil, err
	}
	if res, ok := resp.(*migration.Result); ok && res.Err != nil {
		logger.Error("migration run failed", "error", res.Err)
	}

	return resp, nil
}

func (h *Handler) to(ctx context.Context, runner Runner, name string) (*migration.Result, error) {
	if name == "" {
		return runner.Reset(ctx) //nolint:wrapcheck // Already wrapped by the migrator.
	}

	res, err := runner.To(ctx, name)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already wrapped by the migrator.
	}
	if ferr := res.FirstError(); ferr != nil {
		return nil, ferr
	}

	return res, nil
}

// IsClientError returns true if err was caused by the request itself, as
// opposed to a failure of the database or the migrations.
func IsClientError(err error) bool {
	var (
		unsupportedErr *UnsupportedOperationError
		invalidErr     *InvalidRequestError
		targetErr      *migration.UnknownTargetError
	)

	return errors.As(err, &unsupportedErr) || errors.As(err, &invalidErr) ||
		errors.As(err, &targetErr)
}
