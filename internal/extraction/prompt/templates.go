package prompt

// Template names. Callers can replace any of these via Register to retune
// wording per vendor without a code change.
const (
	TemplateSystemExtraction      = "system_extraction"
	TemplateSystemExtractionDelta = "system_extraction_delta"
	TemplateUserExtractionFull    = "user_extraction_full"
	TemplateUserExtractionDelta   = "user_extraction_delta"
	TemplateSystemMetadata        = "system_metadata"
	TemplateUserMetadata          = "user_metadata"
)

// builtinTemplates is the compiled-in prompt set. The full extraction system
// prompt is sent once per document; every later call carries only the short
// delta reminder plus the working-set hints, which keeps instruction tokens
// flat no matter how long the report runs.
var builtinTemplates = map[string]string{
	TemplateSystemExtraction: `You are a medical lab report extraction engine. Extract every biomarker measurement from the report text you are given.

Respond with a single JSON object and nothing else:
{"biomarkers": [{"name": "...", "value": 0, "unit": "...", "reference_range": "...", "category": "...", "is_abnormal": false}]}

Rules:
- value is the measured result: a number, or one of Nil, Negative, Positive, Trace.
- unit is the printed unit, verbatim. Skip entries that have no unit.
- reference_range is the printed interval ("70-99", "< 5.0"), or omit it.
- category is one of: lipid, metabolic, thyroid, hematology, liver, kidney, vitamin, hormone, immunology, other.
- Never invent values. Skip table headers, footers, addresses, and method descriptions.`,

	TemplateSystemExtractionDelta: `Continue extracting biomarkers from the same lab report. Respond with the same single JSON object format: {"biomarkers": [...]}.`,

	TemplateUserExtractionFull: `{{if .Vendor}}Lab vendor: {{.Vendor}}

{{end}}Report text:
---
{{.ChunkText}}
---`,

	TemplateUserExtractionDelta: `Next section of the report.
{{- if .KnownNames}}
Already extracted, skip unless the value differs: {{join .KnownNames ", "}}.
{{- end}}
{{- if .Patterns}}
Result lines in this report look like:
{{formatList .Patterns}}
{{- end}}
{{- if .SectionHints}}
{{formatList .SectionHints}}
{{- end}}

Report text:
---
{{.ChunkText}}
---`,

	TemplateSystemMetadata: `You extract report-level metadata from medical lab reports.

Respond with a single JSON object and nothing else:
{"metadata": {"lab_name": "...", "report_date": "...", "patient_name": "...", "patient_id": "...", "patient_age": "...", "patient_gender": "..."}}

Omit any field not present in the text. Never guess.`,

	TemplateUserMetadata: `Report text:
---
{{.ChunkText}}
---`,
}
