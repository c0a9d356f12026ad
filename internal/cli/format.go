package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"emailthing/internal/model"
)

func printRows(out io.Writer, rows []model.Row) {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tFROM\tSUBJECT\tFLAGS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.CreatedAt.Format(time.RFC3339),
			deref(r.From.Address),
			deref(r.Subject),
			flags(r),
		)
	}
	_ = tw.Flush()
}

func printCounts(out io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(out, "Categories:")
	for _, k := range keys {
		fmt.Fprintf(out, "  %s: %d\n", k, counts[k])
	}
}

func flags(r model.Row) string {
	f := ""
	if !r.IsRead {
		f += "U"
	}
	if r.IsStarred != nil && *r.IsStarred {
		f += "*"
	}
	if r.BinnedAt != nil {
		f += "T"
	}
	return f
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
