package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/geometry"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"gopkg.in/yaml.v3"
)

// Result is the outcome of one photo check.
type Result struct {
	// Source names the checked input in batch runs.
	Source         string                  `json:"source,omitempty" yaml:"source,omitempty"`
	Success        bool                    `json:"success" yaml:"success"`
	Status         report.ComplianceStatus `json:"status" yaml:"status"`
	ReasonCode     report.ReasonCode       `json:"reason_code" yaml:"reason_code"`
	Recommendation string                  `json:"recommendation" yaml:"recommendation"`
	Error          string                  `json:"error,omitempty" yaml:"error,omitempty"`
	Logs           report.Logs             `json:"logs" yaml:"logs"`

	FaceCount int `json:"face_count" yaml:"face_count"`
	Width     int `json:"width" yaml:"width"`
	Height    int `json:"height" yaml:"height"`

	// Face, Geometry and Crop are set once preprocessing succeeds. Face is in
	// final-image coordinates.
	Face     *face.DetectedFace     `json:"face,omitempty" yaml:"-"`
	Geometry *geometry.FaceGeometry `json:"geometry,omitempty" yaml:"geometry,omitempty"`
	Crop     *geometry.CropBox      `json:"crop,omitempty" yaml:"crop,omitempty"`

	TimingsMs map[string]float64 `json:"timings_ms,omitempty" yaml:"timings_ms,omitempty"`
	TotalMs   float64            `json:"total_ms" yaml:"total_ms"`

	Image *image.NRGBA `json:"-" yaml:"-"`
	Mask  *utils.Mask  `json:"-" yaml:"-"`
}

func (r *Result) finish(recommendation string) *Result {
	r.Recommendation = recommendation
	r.Success = !report.IsRejected(recommendation)
	r.Status = report.StatusFor(recommendation)
	r.ReasonCode = report.ReasonFor(recommendation)
	return r
}

func (r *Result) systemError(err error) *Result {
	r.Error = fmt.Sprintf("Internal server error: %v", err)
	return r.finish(report.RejectSystemError)
}

// Counts returns the number of FAIL and WARNING validation entries.
func (r *Result) Counts() (fails, warnings int) {
	return report.Count(r.Logs.Validation, report.StatusFail), report.Count(r.Logs.Validation, report.StatusWarning)
}

// ToJSON serializes a single Result to pretty JSON.
func ToJSON(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONBatch serializes multiple results to pretty JSON.
func ToJSONBatch(results []*Result) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAML serializes results as a YAML document.
func ToYAML(results ...*Result) (string, error) {
	var v any = results
	if len(results) == 1 {
		v = results[0]
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToText renders a human-readable report.
func ToText(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var sb strings.Builder
	if res.Source != "" {
		fmt.Fprintf(&sb, "%s\n", res.Source)
	}
	fmt.Fprintf(&sb, "Recommendation: %s\n", res.Recommendation)
	fmt.Fprintf(&sb, "Status: %s (%s)\n", res.Status, res.ReasonCode)
	if res.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", res.Error)
	}
	writeSection := func(title string, entries []report.Entry) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(&sb, "\n%s:\n", title)
		for _, e := range entries {
			fmt.Fprintf(&sb, "  %s\n", e)
		}
	}
	writeSection(report.StagePreprocessing, res.Logs.Preprocessing)
	writeSection(report.StageValidation, res.Logs.Validation)
	return sb.String(), nil
}

// ToCSV exports one summary row per result.
func ToCSV(results []*Result) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"source", "status", "reason_code", "fails", "warnings", "recommendation", "total_ms"})
	for _, r := range results {
		if r == nil {
			continue
		}
		fails, warnings := r.Counts()
		_ = w.Write([]string{
			r.Source,
			string(r.Status),
			string(r.ReasonCode),
			strconv.Itoa(fails),
			strconv.Itoa(warnings),
			r.Recommendation,
			fmt.Sprintf("%.1f", r.TotalMs),
		})
	}
	w.Flush()
	return buf.String(), w.Error()
}

// Format renders results in one of json, yaml, text or csv.
func Format(format string, results ...*Result) (string, error) {
	switch strings.ToLower(format) {
	case "", "text":
		parts := make([]string, 0, len(results))
		for _, r := range results {
			s, err := ToText(r)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, "\n"), nil
	case "json":
		if len(results) == 1 {
			return ToJSON(results[0])
		}
		return ToJSONBatch(results)
	case "yaml":
		return ToYAML(results...)
	case "csv":
		return ToCSV(results)
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}
