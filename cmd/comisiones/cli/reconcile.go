package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/promotoria/comisiones/internal/balances"
	"github.com/promotoria/comisiones/internal/cutoff"
)

// Reconciler settles cortes.
type Reconciler interface {
	Reconcile(ctx context.Context, period cutoff.Period) (balances.Report, error)
	ReconcileLastClosed(ctx context.Context) (balances.Report, error)
}

// ReconcileOptions defines the flags of the reconcile command. A zero Year
// selects the last closed corte.
type ReconcileOptions struct {
	Year       int
	Month      int
	Index      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileCommand settles one corte synchronously and prints the report.
func ReconcileCommand(ctx context.Context, svc Reconciler, opts ReconcileOptions) int {
	stdout, stderr := outputs(opts.Stdout, opts.Stderr)
	var (
		report balances.Report
		err    error
	)
	if opts.Year == 0 {
		report, err = svc.ReconcileLastClosed(ctx)
	} else {
		var period cutoff.Period
		period, err = cutoff.Find(opts.Year, time.Month(opts.Month), opts.Index)
		if err == nil {
			report, err = svc.Reconcile(ctx, period)
		}
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return ExitError
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(report); err != nil {
			_, _ = fmt.Fprintf(stderr, "reconcile: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderReport(stdout, report)
	}
	if report.Failed > 0 {
		return ExitPartial
	}
	return ExitOK
}

func renderReport(w io.Writer, report balances.Report) {
	p := newPrinter()
	_, _ = p.Fprintf(w, "Corte %s, saldos con fecha %s\n", report.Period.Label(), report.EffectiveDate.Format("2006-01-02"))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "CLAVE\tANTERIOR\tCORTE\tNETO\tRESULTADO\t")
	for _, r := range report.Results {
		outcome := string(r.Outcome)
		if r.Error != "" {
			outcome += ": " + r.Error
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n", r.AgentKey, money(p, r.Prior), money(p, r.PeriodTotal), money(p, r.Net), outcome)
	}
	_ = tw.Flush()
	_, _ = p.Fprintf(w, "arrastrados %d, liquidados %d, sin cambio %d, ya registrados %d, fallidos %d\n",
		report.Carried, report.Cleared, report.Skipped, report.AlreadyRecorded, report.Failed)
}
