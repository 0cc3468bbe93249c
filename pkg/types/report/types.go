// Package report defines the page-level input types and the derived document
// structure shared between the structure detector, the chunker, and callers.
package report

import (
	"sort"

	"github.com/google/uuid"
)

// DocumentID identifies one lab report across the pipeline and the worker.
type DocumentID string

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.NewString())
}

// BBox is an axis-aligned bounding box in page units. Y grows downward, the
// convention used by the upstream text source.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// IsZero reports whether the box is the zero value.
func (b BBox) IsZero() bool {
	return b.X0 == 0 && b.Y0 == 0 && b.X1 == 0 && b.Y1 == 0
}

// Word is one positioned text fragment on a page. Word geometry is optional
// input; pages without it still flow through text-only heuristics.
type Word struct {
	Text string `json:"text"`
	BBox BBox   `json:"bbox"`
}

// Table describes one detected (or upstream-hinted) table region.
type Table struct {
	BBox       BBox    `json:"bbox"`
	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text,omitempty"`
}

// ZoneType classifies a page region.
type ZoneType string

const (
	ZoneHeader  ZoneType = "header"
	ZoneContent ZoneType = "content"
	ZoneFooter  ZoneType = "footer"
)

// IsValid reports whether t is a known zone type.
func (t ZoneType) IsValid() bool {
	switch t {
	case ZoneHeader, ZoneContent, ZoneFooter:
		return true
	default:
		return false
	}
}

// Zone is one classified page region with its text slice.
type Zone struct {
	Type       ZoneType `json:"type"`
	BBox       BBox     `json:"bbox"`
	Confidence float64  `json:"confidence"`
	Text       string   `json:"text,omitempty"`
}

// RawPage is the immutable per-page input produced once upstream. TableRegions
// and ZoneRegions are optional hints from the source; the structure detector
// derives its own when word geometry is available.
type RawPage struct {
	PageNumber   int     `json:"page_number"`
	Text         string  `json:"text"`
	Words        []Word  `json:"words,omitempty"`
	Width        float64 `json:"width,omitempty"`
	Height       float64 `json:"height,omitempty"`
	TableRegions []Table `json:"table_regions,omitempty"`
	ZoneRegions  []Zone  `json:"zone_regions,omitempty"`
}

// ZoneSet is the three-zone partition of one page. Zone boxes do not overlap
// except where a documented gap-based boundary move applies.
type ZoneSet struct {
	Header  Zone `json:"header"`
	Content Zone `json:"content"`
	Footer  Zone `json:"footer"`
}

// PageStructure is the derived layout of one page.
type PageStructure struct {
	PageNumber int     `json:"page_number"`
	Zones      ZoneSet `json:"zones"`
	Tables     []Table `json:"tables,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Vendor identifies a known lab vendor.
type Vendor string

const (
	VendorUnknown     Vendor = ""
	VendorQuest       Vendor = "quest_diagnostics"
	VendorLabcorp     Vendor = "labcorp"
	VendorThyrocare   Vendor = "thyrocare"
	VendorSRL         Vendor = "srl_diagnostics"
	VendorMetropolis  Vendor = "metropolis"
	VendorLalPathLabs Vendor = "lal_pathlabs"
	VendorApollo      Vendor = "apollo_diagnostics"
)

// DisplayName returns the vendor's human-readable lab name, or "" for
// unknown vendors.
func (v Vendor) DisplayName() string {
	switch v {
	case VendorQuest:
		return "Quest Diagnostics"
	case VendorLabcorp:
		return "Labcorp"
	case VendorThyrocare:
		return "Thyrocare Technologies"
	case VendorSRL:
		return "SRL Diagnostics"
	case VendorMetropolis:
		return "Metropolis Healthcare"
	case VendorLalPathLabs:
		return "Dr Lal PathLabs"
	case VendorApollo:
		return "Apollo Diagnostics"
	default:
		return ""
	}
}

// VendorClassification is the outcome of matching page text against the
// vendor pattern table. Zero matches leave Vendor empty at confidence 0.
type VendorClassification struct {
	Vendor     Vendor  `json:"vendor,omitempty"`
	Confidence float64 `json:"confidence"`
	Matches    int     `json:"matches"`
}

// DocumentStructure is the read-only layout derived once per document.
type DocumentStructure struct {
	Vendor     VendorClassification  `json:"vendor"`
	Pages      map[int]PageStructure `json:"pages"`
	Confidence float64               `json:"confidence"`
}

// PageNumbers returns the analyzed page numbers in ascending order.
func (d DocumentStructure) PageNumbers() []int {
	nums := make([]int, 0, len(d.Pages))
	for n := range d.Pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// HasTables reports whether any page carries at least one detected table.
func (d DocumentStructure) HasTables() bool {
	for _, p := range d.Pages {
		if len(p.Tables) > 0 {
			return true
		}
	}
	return false
}

// SortPages returns the given pages ordered by ascending page number without
// mutating the input slice.
func SortPages(pages []RawPage) []RawPage {
	out := make([]RawPage, len(pages))
	copy(out, pages)
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out
}
