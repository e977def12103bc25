package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"backpack/internal/ledger/models"
)

// emit writes v as indented JSON, or calls text for the text format.
func (o *rootOptions) emit(v any, text func(w io.Writer) error) error {
	if o.format == formatJSON {
		enc := json.NewEncoder(o.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(o.stdout)
}

func writeItem(w io.Writer, index int, item models.PurchaseItem) {
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
		index, item.Product, item.Category, item.TerpeneTag, item.Amount, item.RecordedAt.Format("2006-01-02T15:04:05Z07:00"))
}

func writeItems(w io.Writer, items []models.PurchaseItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tPRODUCT\tCATEGORY\tTAG\tAMOUNT\tRECORDED AT")
	for i, item := range items {
		writeItem(tw, i, item)
	}
	return tw.Flush()
}

func writeScores(w io.Writer, scores []models.CategoryScore) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tSCORE")
	for _, s := range scores {
		fmt.Fprintf(tw, "%s\t%d\n", s.Tag, s.Score)
	}
	return tw.Flush()
}
