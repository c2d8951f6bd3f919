package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mandelsoft/vfs/pkg/vfs"

	actx "go.hackfix.me/dbmigrate/app/context"
	aerrors "go.hackfix.me/dbmigrate/app/errors"
	"go.hackfix.me/dbmigrate/invoke"
)

// Invoke handles a JSON invocation request locally, and prints the JSON
// response.
type Invoke struct {
	Event string `help:"Path to the JSON request file. If omitted, the request is read from stdin."`
}

// Run the invoke command.
func (c *Invoke) Run(appCtx *actx.Context) error {
	var (
		payload []byte
		err     error
	)
	if c.Event != "" {
		payload, err = vfs.ReadFile(appCtx.FS, c.Event)
	} else {
		payload, err = io.ReadAll(appCtx.Stdin)
	}
	if err != nil {
		return aerrors.NewRuntimeError("failed reading request", err, "")
	}

	h := invoke.NewHandler(appCtx.MigratorFactory(), appCtx.Logger)
	resp, err := h.HandleJSON(appCtx.Ctx, payload)
	if err != nil {
		hint := ""
		if invoke.IsClientError(err) {
			hint = `Requests look like {"type": "to", "data": {"name": "<migration>"}}, with type one of latest, to or list.`
		}
		return aerrors.NewRuntimeError("invocation failed", err, hint)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return aerrors.NewRuntimeError("failed encoding response", err, "")
	}
	if _, err = fmt.Fprintln(appCtx.Stdout, string(out)); err != nil {
		return aerrors.NewRuntimeError("failed writing to stdout", err, "")
	}

	return nil
}
