package chunker

import (
	"regexp"
	"strings"

	"github.com/aman-ankur/labextract/internal/extraction/token"
)

// ---------------------------------------------------------------------------
// Boilerplate compression
// ---------------------------------------------------------------------------

// boilerplateLine matches whole lines that carry no measurement content:
// letterhead contact rows, registration identifiers, decorative rules and
// bare classification words.
var boilerplateLine = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(www\.\S+|https?://\S+)\s*$`),
	regexp.MustCompile(`(?i)^\s*(tel|phone|fax|toll\s*free)\s*[:.]?\s*[\d\s()+,-]+\s*$`),
	regexp.MustCompile(`(?i)^\s*e-?mail\s*[:.]\s*\S+\s*$`),
	regexp.MustCompile(`(?i)^\s*(CIN|GSTIN|PAN|TIN)\s*[-:.]?\s*[A-Z0-9-]+\s*$`),
	regexp.MustCompile(`(?i)^\s*reg(istration)?\.?\s*no\.?\s*[-:.]?\s*\S+\s*$`),
	regexp.MustCompile(`(?i)^\s*(NABL|CAP|ISO)\s*[-:.]?\s*[A-Z0-9 /-]*accredit\w*.*$`),
	regexp.MustCompile(`(?i)^\s*page\s+\d+\s+of\s+\d+\s*$`),
	regexp.MustCompile(`(?i)^\s*(normal|other|others)\s*$`),
	regexp.MustCompile(`^\s*[-_=*]{4,}\s*$`),
}

// inlineNoise is substituted away inside surviving lines.
var inlineNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(CIN|GSTIN)\s*[-:.]?\s*[A-Z0-9]{10,21}\b`),
	regexp.MustCompile(`\s{3,}`),
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// compressBoilerplate strips letterhead and registration noise. The result
// is guaranteed never to estimate more tokens than the input: if a rewrite
// comes out larger, the original text is returned untouched.
func compressBoilerplate(text string, est *token.Estimator) string {
	if text == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isBoilerplateLine(line) {
			continue
		}
		kept = append(kept, reduceInlineNoise(line))
	}
	compressed := strings.Join(kept, "\n")
	compressed = blankRun.ReplaceAllString(compressed, "\n\n")
	compressed = strings.TrimSpace(compressed)

	if est.Estimate(compressed) > est.Estimate(text) {
		return text
	}
	return compressed
}

func isBoilerplateLine(line string) bool {
	for _, re := range boilerplateLine {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func reduceInlineNoise(line string) string {
	out := line
	out = inlineNoise[0].ReplaceAllString(out, "")
	out = inlineNoise[1].ReplaceAllString(out, "  ")
	return out
}
