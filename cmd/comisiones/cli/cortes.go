package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/promotoria/comisiones/internal/cutoff"
)

// CortesOptions defines the flags of the cortes command.
type CortesOptions struct {
	Year       int
	Month      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CortesCommand prints the cortes of a month.
func CortesCommand(opts CortesOptions) int {
	stdout, stderr := outputs(opts.Stdout, opts.Stderr)
	periods, err := cutoff.OfMonth(opts.Year, time.Month(opts.Month))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cortes: %v\n", err)
		return ExitError
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(periods); err != nil {
			_, _ = fmt.Fprintf(stderr, "cortes: encode json: %v\n", err)
			return ExitError
		}
		return ExitOK
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CORTE\tINICIO\tFIN\tDIAS")
	for _, p := range periods {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.Label(), p.Start().Format("2006-01-02"), p.End().Format("2006-01-02"), p.Days())
	}
	_ = tw.Flush()
	return ExitOK
}
