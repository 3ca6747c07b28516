package classifier

import "fmt"

// UnknownLabel is shown when the endpoint answers without a label.
const UnknownLabel = "Tidak diketahui"

// Result is the payload returned by a successful /predict call.
type Result struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
	ClassIndex *int     `json:"class_index,omitempty"`
}

// DisplayLabel returns the label, or UnknownLabel when the endpoint omitted it.
func (r *Result) DisplayLabel() string {
	if r == nil || r.Label == "" {
		return UnknownLabel
	}
	return r.Label
}

// ConfidencePercent renders the confidence fraction with two decimals, e.g. "93.00%".
// The boolean is false when the endpoint did not report a confidence.
func (r *Result) ConfidencePercent() (string, bool) {
	if r == nil || r.Confidence == nil {
		return "", false
	}
	return fmt.Sprintf("%.2f%%", *r.Confidence*100), true
}
