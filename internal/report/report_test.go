package report

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func entries(pass, warn, fail int) []Entry {
	var out []Entry
	for range pass {
		out = append(out, Entry{Status: StatusPass, Check: "p"})
	}
	for range warn {
		out = append(out, Entry{Status: StatusWarning, Check: "w"})
	}
	for range fail {
		out = append(out, Entry{Status: StatusFail, Check: "f"})
	}
	return out
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name             string
		pass, warn, fail int
		want             string
	}{
		{"all pass", 5, 0, 0, "LOOKS PROMISING: All primary checks passed."},
		{"empty", 0, 0, 0, "LOOKS PROMISING: All primary checks passed."},
		{"warnings", 3, 2, 0, "NEEDS REVIEW: 2 warning(s) found."},
		{"fail wins", 1, 4, 1, "REJECTED: 1 critical issue(s) found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recommend(entries(tt.pass, tt.warn, tt.fail)))
		})
	}
}

func TestRecommend_UnknownAndInfoIgnored(t *testing.T) {
	got := Recommend([]Entry{{Status: StatusUnknown}, {Status: StatusInfo}, {Status: StatusPass}})
	assert.Equal(t, "LOOKS PROMISING: All primary checks passed.", got)
}

func TestRecommendPrecedenceProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("any FAIL yields a rejection citing the FAIL count", prop.ForAll(
		func(pass, warn, fail int) bool {
			got := Recommend(entries(pass, warn, fail))
			return got == fmt.Sprintf("REJECTED: %d critical issue(s) found.", fail)
		},
		gen.IntRange(0, 10), gen.IntRange(0, 10), gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func TestStatusAndReason(t *testing.T) {
	tests := []struct {
		rec    string
		status ComplianceStatus
		reason ReasonCode
	}{
		{RejectNoFace, Rejected, ReasonNoFace},
		{RejectMultipleFaces, Rejected, ReasonMultipleFaces},
		{RejectPreprocessing, Rejected, ReasonPreprocessing},
		{RejectInvalidImage, Rejected, ReasonInvalidImageData},
		{RejectSystemError, Rejected, ReasonInternalError},
		{"REJECTED: 2 critical issue(s) found.", Rejected, ReasonValidationFailed},
		{"NEEDS REVIEW: 1 warning(s) found.", Compliant, ReasonAllChecksPassed},
		{"LOOKS PROMISING: All primary checks passed.", Compliant, ReasonAllChecksPassed},
		{"something else", Compliant, ReasonUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.rec), tt.rec)
		assert.Equal(t, tt.reason, ReasonFor(tt.rec), tt.rec)
	}
}

func TestNewEntry(t *testing.T) {
	e := NewEntry(StatusFail, "Head Pose - Yaw", "%.1f°", 12.345)
	assert.Equal(t, "12.3°", e.Message)
	assert.Equal(t, "[FAIL] Head Pose - Yaw: 12.3°", e.String())

	plain := NewEntry(StatusPass, "x", "100% literal")
	assert.Equal(t, "100% literal", plain.Message)
}
