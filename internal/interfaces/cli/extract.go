package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aman-ankur/labextract/pkg/client"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// extractResult wraps an ExtractionResult for the output formatters.
type extractResult struct {
	biomarker.ExtractionResult
}

func (r extractResult) String() string {
	var sb strings.Builder
	if r.Metadata.LabName != "" {
		fmt.Fprintf(&sb, "Lab: %s\n", r.Metadata.LabName)
	}
	if r.Metadata.ReportDate != "" {
		fmt.Fprintf(&sb, "Report date: %s\n", r.Metadata.ReportDate)
	}
	fmt.Fprintf(&sb, "Biomarkers: %d", len(r.Biomarkers))
	if r.Diagnostics.UsedFallback {
		sb.WriteString("  (deterministic fallback)")
	}
	sb.WriteString("\n")
	for _, b := range r.Biomarkers {
		fmt.Fprintf(&sb, "  %-28s %s %s", b.Name, b.Value.Raw, b.Unit)
		if !b.ReferenceRange.IsZero() && b.ReferenceRange.Text != "" {
			fmt.Fprintf(&sb, "  (%s)", b.ReferenceRange.Text)
		}
		if b.IsAbnormal {
			sb.WriteString("  *")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Structure confidence %.2f, %d gateway calls, %d chunks, %d rejected",
		r.Diagnostics.StructureConfidence, r.Diagnostics.GatewayCalls,
		r.Diagnostics.ChunksProcessed, r.Diagnostics.CandidatesRejected)
	return sb.String()
}

func (r extractResult) TableHeaders() []string {
	return []string{"NAME", "VALUE", "UNIT", "RANGE", "CONFIDENCE", "PAGE"}
}

func (r extractResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Biomarkers))
	for _, b := range r.Biomarkers {
		rows = append(rows, []string{
			b.Name,
			b.Value.Raw,
			b.Unit,
			b.ReferenceRange.Text,
			fmt.Sprintf("%.2f", b.Confidence),
			strconv.Itoa(b.Page),
		})
	}
	return rows
}

// NewExtractCmd creates "labextract extract <pages.json>".
func NewExtractCmd() *cobra.Command {
	var (
		noGateway bool
		threshold float64
		maxTokens int
		vendor    string
	)

	cmd := &cobra.Command{
		Use:   "extract <pages.json>",
		Short: "Extract biomarkers and report metadata from raw pages",
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

			opts := biomarker.DefaultOptions()
			opts.UseGateway = !noGateway && c.GatewayEnabled()
			if threshold > 0 {
				opts.ConfidenceThreshold = threshold
			}
			if maxTokens > 0 {
				opts.MaxTokensPerCall = maxTokens
			}
			opts.VendorHint = vendor

			result, err := c.ExtractBiomarkers(cmd.Context(), pages, opts)
			if err != nil {
				return err
			}
			return PrintResult(cmd, extractResult{result})
		},
	}

	cmd.Flags().BoolVar(&noGateway, "no-gateway", false, "skip the LLM gateway and use the deterministic parser only")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "confidence threshold for accepting candidates (0 = config default)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "token budget per gateway call (0 = config default)")
	cmd.Flags().StringVar(&vendor, "vendor", "", "lab vendor hint, skips classification")

	return cmd
}
