package domain

import (
	"time"
)

// SelectedImage is the file last picked in the view. It is replaced wholesale
// on every pick and never cleared.
type SelectedImage struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"data"`
	SelectedAt  time.Time `json:"selected_at"`
}

// DetectionResult is one recognised plate as returned by the detection backend.
type DetectionResult struct {
	Text        string  `json:"text"`
	Colour      string  `json:"colour"`
	VehicleType string  `json:"vehicle_type"`
	Confidence  float64 `json:"confidence"`
}

// ViewState is everything a single browser view holds between requests.
type ViewState struct {
	Selected *SelectedImage    `json:"selected,omitempty"`
	Results  []DetectionResult `json:"results"`
	Notice   string            `json:"notice,omitempty"`
}
