package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleResult() *Result {
	res := &Result{Source: "photo.jpg", FaceCount: 1, Width: 1200, Height: 1600}
	res.Logs.Preprocessing = []report.Entry{
		report.NewEntry(report.StatusPass, report.StageFullAnalysis, "Single face detected."),
	}
	res.Logs.Validation = []report.Entry{
		report.NewEntry(report.StatusPass, "Head Pose - Yaw", "0.0°"),
		report.NewEntry(report.StatusFail, "Final Background", "Background issues: too dark"),
		report.NewEntry(report.StatusWarning, "Eyes Open", "EAR: 0.10 (appears closed)."),
	}
	return res.finish(report.Recommend(res.Logs.Validation))
}

func TestResult_Finish(t *testing.T) {
	res := sampleResult()
	assert.False(t, res.Success)
	assert.Equal(t, "REJECTED: 1 critical issue(s) found.", res.Recommendation)
	assert.Equal(t, report.Rejected, res.Status)
	assert.Equal(t, report.ReasonValidationFailed, res.ReasonCode)
	fails, warnings := res.Counts()
	assert.Equal(t, 1, fails)
	assert.Equal(t, 1, warnings)

	sys := (&Result{}).systemError(assert.AnError)
	assert.Equal(t, "Internal server error: "+assert.AnError.Error(), sys.Error)
	assert.Equal(t, report.ReasonInternalError, sys.ReasonCode)
}

func TestToJSON(t *testing.T) {
	s, err := ToJSON(sampleResult())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "VALIDATION_FAILED", decoded["reason_code"])
	logs := decoded["logs"].(map[string]any)
	assert.Len(t, logs["validation"], 3)
	assert.NotContains(t, decoded, "image")

	_, err = ToJSON(nil)
	assert.Error(t, err)
}

func TestToYAML(t *testing.T) {
	s, err := ToYAML(sampleResult())
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(s), &decoded))
	assert.Equal(t, "REJECTED", decoded["status"])
	assert.Equal(t, "photo.jpg", decoded["source"])

	s, err = ToYAML(sampleResult(), sampleResult())
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(s), &list))
	assert.Len(t, list, 2)
}

func TestToText(t *testing.T) {
	s, err := ToText(sampleResult())
	require.NoError(t, err)
	assert.Contains(t, s, "Recommendation: REJECTED: 1 critical issue(s) found.")
	assert.Contains(t, s, "Status: REJECTED (VALIDATION_FAILED)")
	assert.Contains(t, s, "[FAIL] Final Background: Background issues: too dark")
	assert.Contains(t, s, "\n"+report.StageValidation+":\n")
	assert.Less(t, strings.Index(s, report.StagePreprocessing+":"), strings.Index(s, report.StageValidation+":"))
}

func TestToCSV(t *testing.T) {
	s, err := ToCSV([]*Result{sampleResult(), nil})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(s), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "source,status,reason_code,fails,warnings,recommendation,total_ms", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "photo.jpg,REJECTED,VALIDATION_FAILED,1,1,"))
}

func TestFormat(t *testing.T) {
	for _, f := range []string{"", "text", "json", "yaml", "csv", "JSON"} {
		out, err := Format(f, sampleResult())
		require.NoError(t, err, f)
		assert.NotEmpty(t, out, f)
	}
	_, err := Format("xml", sampleResult())
	assert.Error(t, err)
}
