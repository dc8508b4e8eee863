// Package report defines the status taxonomy, log entries and aggregate
// verdicts produced by a photo check.
package report

import (
	"fmt"
	"strings"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusWarning Status = "WARNING"
	StatusUnknown Status = "UNKNOWN"
	StatusInfo    Status = "INFO"
)

// Stage names used in log entries.
const (
	StagePreprocessing = "Preprocessing"
	StageFullAnalysis  = "Full Analysis"
	StageValidation    = "Validation"
)

// Entry is one line of the structured log.
type Entry struct {
	Status  Status `json:"status" yaml:"status"`
	Check   string `json:"check" yaml:"check"`
	Message string `json:"message" yaml:"message"`
}

// NewEntry is a convenience constructor that formats the message.
func NewEntry(status Status, check, format string, args ...any) Entry {
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	return Entry{Status: status, Check: check, Message: format}
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Status, e.Check, e.Message)
}

// Logs partitions entries into the preprocessing and validation phases.
type Logs struct {
	Preprocessing []Entry `json:"preprocessing" yaml:"preprocessing"`
	Validation    []Entry `json:"validation" yaml:"validation"`
}

// Count returns how many entries of status appear in entries.
func Count(entries []Entry, status Status) int {
	n := 0
	for _, e := range entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// Recommendation verdict prefixes.
const (
	PrefixRejected    = "REJECTED"
	PrefixNeedsReview = "NEEDS REVIEW"
	PrefixPromising   = "LOOKS PROMISING"
)

// Recommend derives the aggregate verdict from validation entries. Any FAIL
// rejects; otherwise any WARNING needs review; otherwise the photo is accepted.
func Recommend(entries []Entry) string {
	if fails := Count(entries, StatusFail); fails > 0 {
		return fmt.Sprintf("%s: %d critical issue(s) found.", PrefixRejected, fails)
	}
	if warns := Count(entries, StatusWarning); warns > 0 {
		return fmt.Sprintf("%s: %d warning(s) found.", PrefixNeedsReview, warns)
	}
	return PrefixPromising + ": All primary checks passed."
}

// IsRejected reports whether a recommendation is a rejection.
func IsRejected(recommendation string) bool {
	return strings.Contains(recommendation, PrefixRejected)
}

// Fixed rejection verdicts produced before validation runs.
const (
	RejectNoFace        = "REJECTED: No face detected"
	RejectMultipleFaces = "REJECTED: Multiple faces detected"
	RejectPreprocessing = "REJECTED: Preprocessing failed"
	RejectInvalidImage  = "REJECTED: Invalid image data"
	RejectSystemError   = "REJECTED: System error"
)

// ReasonCode classifies the overall outcome for API consumers.
type ReasonCode string

const (
	ReasonAllChecksPassed  ReasonCode = "ALL_CHECKS_PASSED"
	ReasonInvalidImageData ReasonCode = "INVALID_IMAGE_DATA"
	ReasonNoFace           ReasonCode = "NO_FACE_DETECTED"
	ReasonMultipleFaces    ReasonCode = "MULTIPLE_FACES_DETECTED"
	ReasonPreprocessing    ReasonCode = "PREPROCESSING_FAILED"
	ReasonValidationFailed ReasonCode = "VALIDATION_FAILED"
	ReasonInternalError    ReasonCode = "INTERNAL_SERVER_ERROR"
	ReasonUnknown          ReasonCode = "UNKNOWN_REASON"
)

// ComplianceStatus is the binary verdict exposed to clients.
type ComplianceStatus string

const (
	Compliant ComplianceStatus = "COMPLIANT"
	Rejected  ComplianceStatus = "REJECTED"
)

// StatusFor maps a recommendation to its compliance status.
func StatusFor(recommendation string) ComplianceStatus {
	if IsRejected(recommendation) {
		return Rejected
	}
	return Compliant
}

// ReasonFor maps a recommendation to a reason code.
func ReasonFor(recommendation string) ReasonCode {
	switch {
	case recommendation == RejectNoFace:
		return ReasonNoFace
	case recommendation == RejectMultipleFaces:
		return ReasonMultipleFaces
	case recommendation == RejectPreprocessing:
		return ReasonPreprocessing
	case recommendation == RejectInvalidImage:
		return ReasonInvalidImageData
	case recommendation == RejectSystemError:
		return ReasonInternalError
	case IsRejected(recommendation):
		return ReasonValidationFailed
	case strings.HasPrefix(recommendation, PrefixNeedsReview), strings.HasPrefix(recommendation, PrefixPromising):
		return ReasonAllChecksPassed
	default:
		return ReasonUnknown
	}
}
