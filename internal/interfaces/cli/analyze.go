package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aman-ankur/labextract/pkg/client"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// analyzeResult wraps a DocumentStructure for the output formatters.
type analyzeResult struct {
	report.DocumentStructure
}

func (r analyzeResult) String() string {
	var sb strings.Builder
	if r.Vendor.Vendor != report.VendorUnknown {
		fmt.Fprintf(&sb, "Vendor: %s (confidence %.2f, %d pattern matches)\n",
			r.Vendor.Vendor.DisplayName(), r.Vendor.Confidence, r.Vendor.Matches)
	} else {
		sb.WriteString("Vendor: undetermined\n")
	}
	fmt.Fprintf(&sb, "Structure confidence: %.2f\n", r.Confidence)
	for _, n := range r.PageNumbers() {
		p := r.Pages[n]
		fmt.Fprintf(&sb, "Page %d: confidence %.2f, %d tables, header %.0f-%.0f, footer %.0f-%.0f\n",
			n, p.Confidence, len(p.Tables),
			p.Zones.Header.BBox.Y0, p.Zones.Header.BBox.Y1,
			p.Zones.Footer.BBox.Y0, p.Zones.Footer.BBox.Y1)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r analyzeResult) TableHeaders() []string {
	return []string{"PAGE", "CONFIDENCE", "TABLES", "HEADER", "CONTENT", "FOOTER"}
}

func (r analyzeResult) TableRows() [][]string {
	zoneSpan := func(z report.Zone) string {
		return fmt.Sprintf("%.0f-%.0f", z.BBox.Y0, z.BBox.Y1)
	}
	rows := make([][]string, 0, len(r.Pages))
	for _, n := range r.PageNumbers() {
		p := r.Pages[n]
		rows = append(rows, []string{
			strconv.Itoa(n),
			fmt.Sprintf("%.2f", p.Confidence),
			strconv.Itoa(len(p.Tables)),
			zoneSpan(p.Zones.Header),
			zoneSpan(p.Zones.Content),
			zoneSpan(p.Zones.Footer),
		})
	}
	return rows
}

// NewAnalyzeCmd creates "labextract analyze <pages.json>".
func NewAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <pages.json>",
		Short: "Detect tables, zones, and the lab vendor without extracting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			pages, err := LoadPagesFile(args[0])
			if err != nil {
				return err
			}

			c, err := client.New(cliCtx.Config, client.WithLogger(cliCtx.Logger))
			if err != nil {
				return err
			}
			defer c.Close()

			structure, err := c.AnalyzeDocument(cmd.Context(), pages)
			if err != nil {
				return err
			}
			return PrintResult(cmd, analyzeResult{structure})
		},
	}
}
