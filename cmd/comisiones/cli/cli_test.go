package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/promotoria/comisiones/internal/balances"
	"github.com/promotoria/comisiones/internal/cutoff"
	"github.com/promotoria/comisiones/internal/receipts"
	"github.com/promotoria/comisiones/internal/settlement"
	"github.com/promotoria/comisiones/internal/upload"
)

func TestCortesCommandHuman(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := CortesCommand(CortesOptions{Year: 2024, Month: 6, Stdout: stdout, Stderr: io.Discard})
	require.Equal(t, ExitOK, code)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 6)
	require.Contains(t, lines[1], "2024-06 #1")
	require.Contains(t, lines[1], "2024-06-04")
	require.Contains(t, lines[5], "2024-06-26")
}

func TestCortesCommandJSONAndInvalidMonth(t *testing.T) {
	stdout := new(bytes.Buffer)
	require.Equal(t, ExitOK, CortesCommand(CortesOptions{Year: 2024, Month: 2, JSONOutput: true, Stdout: stdout}))
	var periods []cutoff.Period
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &periods))
	require.Equal(t, 29, periods[len(periods)-1].EndDay)

	stderr := new(bytes.Buffer)
	require.Equal(t, ExitError, CortesCommand(CortesOptions{Year: 2024, Month: 0, Stdout: io.Discard, Stderr: stderr}))
	require.Contains(t, stderr.String(), "cortes:")
}

type stubImporter struct {
	res settlement.ImportResult
	err error
}

func (s stubImporter) Import(_ context.Context, r io.Reader, opts settlement.ImportOptions) (settlement.ImportResult, error) {
	if s.err != nil {
		return settlement.ImportResult{}, s.err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(upload.Progress{Stage: upload.StageRetry, Chunk: 1, Chunks: 3, Attempt: 2, Err: errors.New("timeout")})
		opts.OnProgress(upload.Progress{Stage: upload.StageChunkDone, Chunk: 1, Chunks: 3, State: upload.StateFailed, Percent: 66.7})
	}
	return s.res, nil
}

func writeTempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recibos.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("xlsx"), 0o600))
	return path
}

func TestImportCommandReportsFailedChunks(t *testing.T) {
	svc := stubImporter{res: settlement.ImportResult{
		Ingest: receipts.IngestReport{Rows: 61, Accepted: 60, Rejected: []receipts.RowIssue{{Row: 9, Column: "Póliza", Reason: "policy X not found"}}},
		Upload: upload.Result{TotalRecords: 60, Succeeded: 35, OK: true, Elapsed: 3 * time.Second,
			FailedChunks: []upload.ChunkError{{Index: 1, Offset: 25, Size: 25, Attempts: 4, Message: "timeout"}}},
	}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := ImportCommand(context.Background(), svc, ImportOptions{Path: writeTempFile(t), Stdout: stdout, Stderr: stderr})

	require.Equal(t, ExitPartial, code)
	require.Contains(t, stdout.String(), "fila 9 [Póliza]")
	require.Contains(t, stdout.String(), "bloque 2 (registros 26-50) falló tras 4 intento(s)")
	require.Contains(t, stderr.String(), "bloque 2/3: intento 2 tras error: timeout")
	require.Contains(t, stderr.String(), "failed")
}

func TestImportCommandErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	require.Equal(t, ExitError, ImportCommand(context.Background(), stubImporter{}, ImportOptions{Stderr: stderr}))
	require.Contains(t, stderr.String(), "--file is required")

	stderr.Reset()
	code := ImportCommand(context.Background(), stubImporter{err: receipts.ErrEmptySheet}, ImportOptions{Path: writeTempFile(t), Stderr: stderr})
	require.Equal(t, ExitError, code)
	require.Contains(t, stderr.String(), "sheet is empty")
}

func TestImportCommandJSON(t *testing.T) {
	svc := stubImporter{res: settlement.ImportResult{Upload: upload.Result{RunID: "r1", OK: true, TotalRecords: 2, Succeeded: 2}}}
	stdout := new(bytes.Buffer)
	code := ImportCommand(context.Background(), svc, ImportOptions{Path: writeTempFile(t), JSONOutput: true, Stdout: stdout, Stderr: io.Discard})
	require.Equal(t, ExitOK, code)

	var res settlement.ImportResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	require.Equal(t, "r1", res.Upload.RunID)
}

type stubReconciler struct {
	period     *cutoff.Period
	lastClosed bool
	report     balances.Report
}

func (s *stubReconciler) Reconcile(_ context.Context, period cutoff.Period) (balances.Report, error) {
	s.period = &period
	s.report.Period = period
	return s.report, nil
}

func (s *stubReconciler) ReconcileLastClosed(context.Context) (balances.Report, error) {
	s.lastClosed = true
	return s.report, nil
}

func TestReconcileCommandExplicitCorte(t *testing.T) {
	svc := &stubReconciler{report: balances.Report{
		EffectiveDate: time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC),
		Results: []balances.AgentResult{
			{AgentKey: 1200, Prior: decimal.NewFromInt(-100), PeriodTotal: decimal.NewFromInt(40), Net: decimal.NewFromInt(-60), Outcome: balances.OutcomeCarried},
			{AgentKey: 1300, Outcome: balances.OutcomeFailed, Error: "refdata: agent not found"},
		},
		Carried: 1,
		Failed:  1,
	}}
	stdout := new(bytes.Buffer)
	code := ReconcileCommand(context.Background(), svc, ReconcileOptions{Year: 2024, Month: 6, Index: 2, Stdout: stdout, Stderr: io.Discard})

	require.Equal(t, ExitPartial, code)
	require.NotNil(t, svc.period)
	require.Equal(t, 11, svc.period.EndDay)
	out := stdout.String()
	require.Contains(t, out, "Corte 2024-06 #2, saldos con fecha 2024-06-12")
	require.Contains(t, out, "carried")
	require.Contains(t, out, "failed: refdata: agent not found")
	require.Contains(t, out, "arrastrados 1")
}

func TestReconcileCommandLastClosedAndBadCorte(t *testing.T) {
	svc := &stubReconciler{}
	require.Equal(t, ExitOK, ReconcileCommand(context.Background(), svc, ReconcileOptions{JSONOutput: true, Stdout: io.Discard}))
	require.True(t, svc.lastClosed)

	stderr := new(bytes.Buffer)
	code := ReconcileCommand(context.Background(), &stubReconciler{}, ReconcileOptions{Year: 2024, Month: 6, Index: 7, Stderr: stderr})
	require.Equal(t, ExitError, code)
	require.Contains(t, stderr.String(), "period not found")
}
