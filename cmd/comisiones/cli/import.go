package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/promotoria/comisiones/internal/settlement"
	"github.com/promotoria/comisiones/internal/upload"
)

// Importer runs a workbook import.
type Importer interface {
	Import(ctx context.Context, r io.Reader, opts settlement.ImportOptions) (settlement.ImportResult, error)
}

// ImportOptions defines the flags of the import command.
type ImportOptions struct {
	Path       string
	Sheet      string
	JSONOutput bool
	Stdout     io.Writer
	// Stderr receives live progress lines.
	Stderr io.Writer
}

// ImportCommand imports a receipt workbook and reports the outcome. It exits
// with ExitPartial when some chunks could not be persisted.
func ImportCommand(ctx context.Context, svc Importer, opts ImportOptions) int {
	stdout, stderr := outputs(opts.Stdout, opts.Stderr)
	if opts.Path == "" {
		_, _ = fmt.Fprintln(stderr, "import: --file is required")
		return ExitError
	}
	f, err := os.Open(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "import: %v\n", err)
		return ExitError
	}
	defer func() { _ = f.Close() }()

	p := newPrinter()
	res, err := svc.Import(ctx, f, settlement.ImportOptions{
		Sheet: opts.Sheet,
		OnProgress: func(ev upload.Progress) {
			renderProgress(stderr, ev)
		},
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "import: %v\n", err)
		return ExitError
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(res); err != nil {
			_, _ = fmt.Fprintf(stderr, "import: encode json: %v\n", err)
			return ExitError
		}
	} else {
		_, _ = p.Fprintf(stdout, "Filas leídas: %d  aceptadas: %d  rechazadas: %d  fechas ilegibles: %d\n",
			res.Ingest.Rows, res.Ingest.Accepted, len(res.Ingest.Rejected), res.Ingest.UnparseableDates)
		for _, issue := range res.Ingest.Rejected {
			_, _ = fmt.Fprintf(stdout, "  fila %d [%s]: %s\n", issue.Row, issue.Column, issue.Reason)
		}
		_, _ = p.Fprintf(stdout, "Recibos guardados: %d de %d en %v (%.1f/s)\n",
			res.Upload.Succeeded, res.Upload.TotalRecords, res.Upload.Elapsed.Round(time.Millisecond), res.Upload.Throughput)
		for _, c := range res.Upload.FailedChunks {
			_, _ = fmt.Fprintf(stdout, "  bloque %d (registros %d-%d) falló tras %d intento(s): %s\n",
				c.Index+1, c.Offset+1, c.Offset+c.Size, c.Attempts, c.Message)
		}
	}
	if len(res.Upload.FailedChunks) > 0 {
		return ExitPartial
	}
	return ExitOK
}

func renderProgress(w io.Writer, ev upload.Progress) {
	switch ev.Stage {
	case upload.StageRetry:
		_, _ = fmt.Fprintf(w, "bloque %d/%d: intento %d tras error: %v\n", ev.Chunk+1, ev.Chunks, ev.Attempt, ev.Err)
	case upload.StageChunkDone:
		_, _ = fmt.Fprintf(w, "[%5.1f%%] bloque %d/%d %s, %d guardados, restante ~%v\n",
			ev.Percent, ev.Chunk+1, ev.Chunks, ev.State, ev.Succeeded, ev.Remaining.Round(time.Second))
	}
}
