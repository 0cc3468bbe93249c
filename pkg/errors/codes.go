package errors

// ErrorCode is a string identifier for a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeOK           ErrorCode = "OK"
	ErrCodeUnknown      ErrorCode = "COMMON_000"
	ErrCodeInternal     ErrorCode = "COMMON_001"
	ErrCodeInvalidInput ErrorCode = "COMMON_002"
	ErrCodeTimeout      ErrorCode = "COMMON_003"
	ErrCodeCancelled    ErrorCode = "COMMON_004"
	ErrCodeConfig       ErrorCode = "COMMON_005"
)

// Structure detection error codes. All of these degrade the affected page to
// a single low-confidence content zone; none abort a document.
const (
	ErrCodeStructureDetection ErrorCode = "STRUCT_001"
	ErrCodeZonePartition      ErrorCode = "STRUCT_002"
	ErrCodeTableDetection     ErrorCode = "STRUCT_003"
)

// Gateway error codes. Timeout and unavailable flip the pipeline into
// fallback mode; JSON recovery exhaustion is an empty result, not a failure.
const (
	ErrCodeGatewayTimeout     ErrorCode = "GATE_001"
	ErrCodeGatewayUnavailable ErrorCode = "GATE_002"
	ErrCodeGatewayRateLimited ErrorCode = "GATE_003"
	ErrCodeJSONRecovery       ErrorCode = "GATE_004"
	ErrCodeGatewayResponse    ErrorCode = "GATE_005"
)

// Extraction pipeline error codes.
const (
	ErrCodeValidationRejected ErrorCode = "EXTRACT_001"
	ErrCodeChunkFailure       ErrorCode = "EXTRACT_002"
	ErrCodeFallbackParse      ErrorCode = "EXTRACT_003"
	ErrCodePromptBuild        ErrorCode = "EXTRACT_004"
)

// Infrastructure error codes.
const (
	ErrCodeStorage       ErrorCode = "INFRA_001"
	ErrCodeCache         ErrorCode = "INFRA_002"
	ErrCodeMessageQueue  ErrorCode = "INFRA_003"
	ErrCodeSerialization ErrorCode = "INFRA_004"
)

// transientCodes marks conditions where a later retry of the whole job may
// succeed. Deterministic failures (validation, parse, config) are absent.
var transientCodes = map[ErrorCode]bool{
	ErrCodeTimeout:            true,
	ErrCodeGatewayTimeout:     true,
	ErrCodeGatewayUnavailable: true,
	ErrCodeGatewayRateLimited: true,
	ErrCodeStorage:            true,
	ErrCodeCache:              true,
	ErrCodeMessageQueue:       true,
}
