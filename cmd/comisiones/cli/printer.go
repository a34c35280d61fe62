// Package cli implements the operational subcommands of the comisiones binary.
package cli

import (
	"io"
	"os"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Exit codes shared by the subcommands.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitPartial = 10
)

var reportLocale = language.MustParse("es-MX")

func newPrinter() *message.Printer {
	return message.NewPrinter(reportLocale)
}

// money renders an amount for humans. Display only: values are never parsed back.
func money(p *message.Printer, d decimal.Decimal) string {
	return p.Sprintf("$%.2f", d.Round(2).InexactFloat64())
}

func outputs(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
