package structure

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// builtinPatterns is the compiled-in vendor fingerprint table. A YAML file
// loaded via LoadPatterns replaces it wholesale.
var builtinPatterns = map[report.Vendor][]string{
	report.VendorQuest: {
		`(?i)quest\s+diagnostics`,
		`(?i)questdiagnostics\.com`,
		`(?i)nichols\s+institute`,
	},
	report.VendorLabcorp: {
		`(?i)labcorp`,
		`(?i)laboratory\s+corporation\s+of\s+america`,
	},
	report.VendorThyrocare: {
		`(?i)thyrocare`,
		`(?i)aarogyam`,
		`(?i)thyrocare\.com`,
	},
	report.VendorSRL: {
		`(?i)srl\s+diagnostics`,
		`(?i)srl\s+limited`,
		`(?i)srlworld\.com`,
	},
	report.VendorMetropolis: {
		`(?i)metropolis\s+healthcare`,
		`(?i)metropolis\s+labs?`,
		`(?i)metropolisindia\.com`,
	},
	report.VendorLalPathLabs: {
		`(?i)lal\s*path\s*labs`,
		`(?i)dr\.?\s*lal`,
		`(?i)lalpathlabs\.com`,
	},
	report.VendorApollo: {
		`(?i)apollo\s+diagnostics`,
		`(?i)apollodiagnostics\.in`,
	},
}

// VendorClassifier matches report text against per-vendor regex tables.
// The table is swappable at runtime; Classify is safe for concurrent use.
type VendorClassifier struct {
	mu       sync.RWMutex
	patterns map[report.Vendor][]*regexp.Regexp
	logger   logging.Logger
}

// NewVendorClassifier builds a classifier over the compiled-in table.
func NewVendorClassifier(logger logging.Logger) *VendorClassifier {
	compiled, err := compilePatterns(builtinPatterns)
	if err != nil {
		// The builtin table is static; a compile failure is a programming
		// error caught by tests, not a runtime condition.
		panic(fmt.Sprintf("structure: builtin vendor patterns: %v", err))
	}
	return &VendorClassifier{
		patterns: compiled,
		logger:   logging.OrNop(logger),
	}
}

func compilePatterns(src map[report.Vendor][]string) (map[report.Vendor][]*regexp.Regexp, error) {
	out := make(map[report.Vendor][]*regexp.Regexp, len(src))
	for vendor, exprs := range src {
		for _, expr := range exprs {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeConfig,
					fmt.Sprintf("vendor pattern %q for %s", expr, vendor))
			}
			out[vendor] = append(out[vendor], re)
		}
	}
	return out, nil
}

// LoadPatterns replaces the pattern table from a YAML file of the form
//
//	vendors:
//	  thyrocare:
//	    - "(?i)thyrocare"
//
// On any read or compile error the previous table stays in effect.
func (c *VendorClassifier) LoadPatterns(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfig, "read vendor patterns")
	}

	var raw map[string][]string
	if err := v.UnmarshalKey("vendors", &raw); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfig, "parse vendor patterns")
	}
	if len(raw) == 0 {
		return errors.New(errors.ErrCodeConfig, "vendor patterns file has no vendors")
	}

	src := make(map[report.Vendor][]string, len(raw))
	for name, exprs := range raw {
		src[report.Vendor(name)] = exprs
	}
	compiled, err := compilePatterns(src)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.patterns = compiled
	c.mu.Unlock()
	c.logger.Info("vendor patterns reloaded",
		logging.String("path", path),
		logging.Int("vendors", len(compiled)))
	return nil
}

// Watch reloads the pattern file whenever it changes on disk. The watcher
// runs until ctx is cancelled. The directory is watched rather than the file
// so editor rename-and-replace saves are still seen.
func (c *VendorClassifier) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfig, "create pattern watcher")
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.Wrap(err, errors.ErrCodeConfig, "watch pattern directory")
	}

	base := filepath.Base(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.LoadPatterns(path); err != nil {
					c.logger.Warn("vendor pattern reload failed, keeping previous table",
						logging.String("path", path), logging.Err(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("vendor pattern watcher error", logging.Err(err))
			}
		}
	}()
	return nil
}

// Classify scores text against every vendor's patterns. The vendor matching
// the most patterns wins; ties break to the lexicographically smallest name
// so results are deterministic. Zero matches means undetermined.
func (c *VendorClassifier) Classify(text string) report.VendorClassification {
	c.mu.RLock()
	patterns := c.patterns
	c.mu.RUnlock()

	vendors := make([]report.Vendor, 0, len(patterns))
	for v := range patterns {
		vendors = append(vendors, v)
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i] < vendors[j] })

	best := report.VendorUnknown
	bestMatches := 0
	for _, vendor := range vendors {
		matches := 0
		for _, re := range patterns[vendor] {
			if re.MatchString(text) {
				matches++
			}
		}
		if matches > bestMatches {
			best = vendor
			bestMatches = matches
		}
	}

	if bestMatches == 0 {
		return report.VendorClassification{Vendor: report.VendorUnknown, Confidence: 0, Matches: 0}
	}
	return report.VendorClassification{
		Vendor:     best,
		Confidence: math.Min(0.95, 0.6+0.1*float64(bestMatches)),
		Matches:    bestMatches,
	}
}
