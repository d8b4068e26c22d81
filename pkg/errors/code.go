package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Judge & Sandbox errors
// 14000-14999: Contest & Store errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008
	NotSupported        ErrorCode = 10009

	// Storage errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	TransactionFailed ErrorCode = 10103
	DocumentConflict  ErrorCode = 10104
	DocumentCorrupt   ErrorCode = 10105

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidFormat    ErrorCode = 10301
	ConfigInvalid    ErrorCode = 10304

	// ========== Judge & Sandbox Errors (13000-13999) ==========

	// Submission (13000-13099)
	EmptySubmission ErrorCode = 13000
	CodeTooLarge    ErrorCode = 13002

	// Judge (13100-13199)
	JudgeQueueFull     ErrorCode = 13100
	JudgeSystemError   ErrorCode = 13101
	SandboxStartFailed ErrorCode = 13107
	WorkspaceFailed    ErrorCode = 13108

	// ========== Contest & Store Errors (14000-14999) ==========

	// Competitors (14100-14199)
	CompetitorNotFound ErrorCode = 14100
	CompetitorExists   ErrorCode = 14101
	InvalidName        ErrorCode = 14102

	// Problems (14200-14299)
	ProblemNotFound  ErrorCode = 14200
	ProgressNotFound ErrorCode = 14201
	ProblemSetEmpty  ErrorCode = 14202
	DuplicateProblem ErrorCode = 14203

	// Judge review (14300-14399)
	InvalidApprovalStatus ErrorCode = 14300

	// Export (14400-14499)
	ExportFailed ErrorCode = 14400
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",
	NotSupported:        "Operation not supported by this backend",

	DatabaseError:     "Database operation failed",
	TransactionFailed: "Database transaction failed",
	DocumentConflict:  "Document was modified concurrently",
	DocumentCorrupt:   "Stored document is corrupt",

	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	ValidationFailed: "Validation failed",
	InvalidFormat:    "Invalid format",
	ConfigInvalid:    "Invalid configuration",

	EmptySubmission: "Submission code is empty",
	CodeTooLarge:    "Code is too large",

	JudgeQueueFull:     "Judge queue is full, please try again later",
	JudgeSystemError:   "Judge system error",
	SandboxStartFailed: "Failed to start sandboxed process",
	WorkspaceFailed:    "Failed to prepare sandbox workspace",

	CompetitorNotFound: "Competitor not found",
	CompetitorExists:   "Competitor name is already taken",
	InvalidName:        "Invalid competitor name",

	ProblemNotFound:  "Problem not found",
	ProgressNotFound: "No progress recorded for this problem",
	ProblemSetEmpty:  "Problem set is empty",
	DuplicateProblem: "Duplicate problem id",

	InvalidApprovalStatus: "Invalid judge approval status",

	ExportFailed: "Failed to export solutions",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Retryable reports whether an operation failing with this code may succeed
// when repeated without changes.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ServiceUnavailable, Timeout, DocumentConflict, JudgeQueueFull, LockFailed, CacheError, DatabaseError:
		return true
	default:
		return false
	}
}
