// Package core provides the asynchronous bulk-operation pipeline.
//
// # Error Codes Reference
//
// This file defines user-friendly messages with codes for support
// reference. When users encounter errors, they can quote the error code
// to support staff for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Platform API Errors (API001-API099)
//
//	API001 - Session expired: The platform session is no longer valid
//	         Action: Re-authenticate and resubmit the job
//	         Patterns: "invalid_session_id", "session expired"
//
//	API002 - Request limit: The org's daily API request limit was hit
//	         Action: Wait for the limit window to reset before retrying
//	         Patterns: "request_limit_exceeded"
//
//	API003 - Row lock: The remote API could not lock a row for update
//	         Action: Retry the job; reduce concurrent changes to the same records
//	         Patterns: "unable_to_lock_row"
//
//	API004 - Object access: The object or field is not visible to this user
//	         Action: Check object and field-level permissions
//	         Patterns: "invalid_type", "invalid_field"
//
//	API005 - Storage limit: The org's data storage limit was exceeded
//	         Action: Free storage or contact the platform administrator
//	         Patterns: "storage_limit_exceeded"
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - Duplicate: A matching record already exists
//	         Action: Download failed rows to review duplicates
//	         Patterns: "duplicate_value", "duplicates_detected"
//
//	ROW002 - Required field: A required field was empty
//	         Action: Ensure all required columns have values
//	         Patterns: "required_field_missing"
//
//	ROW003 - Lookup unresolved: A related record could not be matched
//	         Action: Check the lookup column values or enable null-if-no-match
//	         Patterns: "related record not found"
//
//	ROW004 - Ambiguous lookup: A lookup value matched multiple records
//	         Action: Use a unique lookup field or allow first-match
//	         Patterns: "related records"
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Timed out: The remote job did not finish in time
//	         Action: Check the job in the platform UI; it may still complete
//	          Patterns: "exceeded maximum attempts"
//
//	JOB002 - Cancelled: The job was aborted by the caller
//	         Patterns: "job cancelled"
//
//	JOB003 - Queue full: Too many jobs are waiting
//	         Action: Please wait a moment before trying again
//	         Patterns: "queue is full", "too many concurrent jobs"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to
// user messages. The first matching pattern wins, so more specific
// patterns come before general ones.
var errorPatterns = []errorPattern{
	// Platform API errors
	{
		pattern: "invalid_session_id",
		msg: UserMessage{
			Message: "The platform session is no longer valid",
			Action:  "Re-authenticate and resubmit the job",
			Code:    "API001",
		},
	},
	{
		pattern: "session expired",
		msg: UserMessage{
			Message: "The platform session is no longer valid",
			Action:  "Re-authenticate and resubmit the job",
			Code:    "API001",
		},
	},
	{
		pattern: "request_limit_exceeded",
		msg: UserMessage{
			Message: "The org's daily API request limit was hit",
			Action:  "Wait for the limit window to reset before retrying",
			Code:    "API002",
		},
	},
	{
		pattern: "unable_to_lock_row",
		msg: UserMessage{
			Message: "The remote API could not lock a row for update",
			Action:  "Retry the job; reduce concurrent changes to the same records",
			Code:    "API003",
		},
	},
	{
		pattern: "invalid_type",
		msg: UserMessage{
			Message: "The object is not visible to this user",
			Action:  "Check object permissions",
			Code:    "API004",
		},
	},
	{
		pattern: "invalid_field",
		msg: UserMessage{
			Message: "A field is not visible to this user",
			Action:  "Check field-level permissions",
			Code:    "API004",
		},
	},
	{
		pattern: "storage_limit_exceeded",
		msg: UserMessage{
			Message: "The org's data storage limit was exceeded",
			Action:  "Free storage or contact the platform administrator",
			Code:    "API005",
		},
	},

	// Row errors
	{
		pattern: "duplicate_value",
		msg: UserMessage{
			Message: "A matching record already exists",
			Action:  "Download failed rows to review duplicates",
			Code:    "ROW001",
		},
	},
	{
		pattern: "duplicates_detected",
		msg: UserMessage{
			Message: "A matching record already exists",
			Action:  "Download failed rows to review duplicates",
			Code:    "ROW001",
		},
	},
	{
		pattern: "required_field_missing",
		msg: UserMessage{
			Message: "A required field was empty",
			Action:  "Ensure all required columns have values",
			Code:    "ROW002",
		},
	},
	{
		pattern: "related record not found",
		msg: UserMessage{
			Message: "A related record could not be matched",
			Action:  "Check the lookup column values or enable null-if-no-match",
			Code:    "ROW003",
		},
	},
	{
		pattern: "related records",
		msg: UserMessage{
			Message: "A lookup value matched multiple records",
			Action:  "Use a unique lookup field or allow first-match",
			Code:    "ROW004",
		},
	},

	// Job errors
	{
		pattern: "exceeded maximum attempts",
		msg: UserMessage{
			Message: "The remote job did not finish in time",
			Action:  "Check the job in the platform UI; it may still complete",
			Code:    "JOB001",
		},
	},
	{
		pattern: "job cancelled",
		msg: UserMessage{
			Message: "The job was cancelled",
			Action:  "Resubmit the job if this was unintended",
			Code:    "JOB002",
		},
	},
	{
		pattern: "queue is full",
		msg: UserMessage{
			Message: "Too many jobs are waiting",
			Action:  "Please wait a moment before trying again",
			Code:    "JOB003",
		},
	},
	{
		pattern: "too many concurrent jobs",
		msg: UserMessage{
			Message: "Too many jobs are running",
			Action:  "Please wait a moment before trying again",
			Code:    "JOB003",
		},
	},
}

// defaultMessage is the fallback when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// UserFacingMessage maps a technical error string to a user-friendly
// message with a support code. Never returns an empty message.
func UserFacingMessage(technical string) UserMessage {
	lower := strings.ToLower(technical)
	for _, ep := range errorPatterns {
		if strings.Contains(lower, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserMessage renders a UserMessage as a single display string.
func FormatUserMessage(m UserMessage) string {
	if m.Action == "" {
		return fmt.Sprintf("%s [%s]", m.Message, m.Code)
	}
	return fmt.Sprintf("%s. %s [%s]", m.Message, m.Action, m.Code)
}
