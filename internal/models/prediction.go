package models

// Label is the normalized classification outcome returned to callers.
type Label string

const (
	LabelNotHate Label = "NOT_HATE"
	LabelHate    Label = "HATE"
	LabelUnknown Label = "UNKNOWN"
)

// RawLabels maps runtime label ids to domain labels
var RawLabels = map[string]Label{
	"LABEL_0": LabelNotHate,
	"LABEL_1": LabelHate,
}

// Prediction is a single normalized classification result
type Prediction struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
}

// PredictRequest for single text classification. Text is a pointer so that a
// missing or null field can be told apart from an empty string.
type PredictRequest struct {
	Text *string `json:"text"`
}

// BatchPredictRequest for multiple texts
type BatchPredictRequest struct {
	Texts []*string `json:"texts"`
}

// BatchPredictResponse preserves input order
type BatchPredictResponse struct {
	Results []Prediction `json:"results"`
}
