package chunker

// RegionType tags which page region a chunk was cut from.
type RegionType string

const (
	// RegionTable marks a chunk holding one detected table.
	RegionTable RegionType = "table"
	// RegionContent marks a chunk cut from the content zone.
	RegionContent RegionType = "content"
	// RegionHeader marks a chunk cut from the header zone.
	RegionHeader RegionType = "header"
	// RegionPage marks a full-page chunk used when no usable structure
	// exists for the page.
	RegionPage RegionType = "page"
)

// Chunk is one token-bounded extraction unit. Chunks are ephemeral: the
// orchestrator consumes each exactly once and never revisits it.
type Chunk struct {
	Text            string     `json:"text"`
	Page            int        `json:"page"`
	RegionType      RegionType `json:"region_type"`
	EstimatedTokens int        `json:"estimated_tokens"`
	Confidence      float64    `json:"confidence"`
	ContextLabel    string     `json:"context_label,omitempty"`
}
