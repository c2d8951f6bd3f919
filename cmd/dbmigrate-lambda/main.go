// Command dbmigrate-lambda runs the migration runner as an AWS Lambda
// function. The configuration is read from the environment on every
// invocation, and the migrations are the ones bundled into the binary, unless
// DBMIGRATE_SOURCE is set to "dynamic".
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/mandelsoft/vfs/pkg/osfs"

	"go.hackfix.me/dbmigrate/app/config"
	actx "go.hackfix.me/dbmigrate/app/context"
	"go.hackfix.me/dbmigrate/invoke"
	"go.hackfix.me/dbmigrate/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("DBMIGRATE_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	lambda.Start(func(ctx context.Context, payload json.RawMessage) (any, error) {
		return handle(ctx, logger, payload)
	})
}

func handle(ctx context.Context, logger *slog.Logger, payload []byte) (any, error) {
	fs := osfs.New()
	cfg := config.NewConfig(fs, "")
	cfg.ApplyEnv(os.Getenv)
	cfg.SetDefaults(os.Getenv)

	appCtx := &actx.Context{
		Ctx:        ctx,
		FS:         fs,
		Logger:     logger,
		TimeSource: osTime{},
		Config:     cfg,
		Bundle:     migrations.FS,
	}

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ctx = invoke.WithInvocationID(ctx, lc.AwsRequestID)
	}

	return invoke.NewHandler(appCtx.MigratorFactory(), logger).HandleJSON(ctx, payload) //nolint:wrapcheck // Returned to the Lambda runtime as is.
}

func logLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type osTime struct{}

func (osTime) Now() time.Time {
	return time.Now()
}
