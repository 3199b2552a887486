package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"bookledger/internal/ledger"
)

func printReport(w io.Writer, r ledger.Report, asJSON bool) error {
	if asJSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	status := "consistent"
	if !r.Consistent() {
		status = fmt.Sprintf("DRIFT of %+d copies", r.Drift)
	}
	_, err := fmt.Fprintf(w, "books:        %s\nstock total:  %s\nquantity sum: %s\nstatus:       %s\n",
		humanize.Comma(int64(r.Books)), humanize.Comma(int64(r.Total)), humanize.Comma(int64(r.Sum)), status)
	return err
}
