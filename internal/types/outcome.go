package types

// RejectReason explains a negative verification outcome. Reasons are
// split into retryable (the escalation loop keeps going) and terminal
// (the candidate is rejected until cooldown removal).
type RejectReason string

const (
	RejectNone RejectReason = ""

	// Retryable.
	RejectUnclearImage     RejectReason = "unclear_image"
	RejectInsufficientInfo RejectReason = "insufficient_info"
	RejectLowConfidence    RejectReason = "low_confidence"
	RejectAPIError         RejectReason = "api_error"
	RejectPlateNotVisible  RejectReason = "license_plate_not_visible"
	RejectAmbiguous        RejectReason = "ambiguous"

	// Terminal.
	RejectWrongModelOrColor RejectReason = "wrong_model_or_color"
	RejectPlateMismatch     RejectReason = "license_plate_mismatch"
)

// Retryable reports whether the reason sends the candidate back to
// unknown for another escalation round.
func (r RejectReason) Retryable() bool {
	switch r {
	case RejectUnclearImage, RejectInsufficientInfo, RejectLowConfidence,
		RejectAPIError, RejectPlateNotVisible, RejectAmbiguous:
		return true
	}
	return false
}

// Terminal reports whether the reason permanently rejects the
// candidate (until the reject cooldown removes it).
func (r RejectReason) Terminal() bool {
	switch r {
	case RejectWrongModelOrColor, RejectPlateMismatch:
		return true
	}
	return false
}

// ViewClassification is the backend's opinion of the viewing angle.
type ViewClassification struct {
	View       View    `json:"view"`
	Confidence float64 `json:"confidence"`
}

// Outcome is the typed result of one verification call. Backends
// report failures as outcomes, never as panics, so the policy layer
// can tell retryable from terminal.
type Outcome struct {
	IsMatch      bool                `json:"is_match"`
	Description  string              `json:"description,omitempty"`
	RejectReason RejectReason        `json:"reject_reason,omitempty"`
	View         *ViewClassification `json:"view,omitempty"`
	// PlateMatch is nil when the backend could not read a plate,
	// otherwise whether the plate corroborates the target.
	PlateMatch *bool  `json:"plate_match,omitempty"`
	OCRText    string `json:"ocr_text,omitempty"`
}
