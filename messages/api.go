package messages

// InlineContent is the wire form of a binary study input: an image, a PDF
// page, or a recorded recitation.
type InlineContent struct {
	Data     string `json:"data"` // Base64-encoded bytes
	MimeType string `json:"mimeType"`
}

// AnalysisRequest carries a verse for the one-shot analysis endpoints.
// Exactly one of Text and Inline is set.
type AnalysisRequest struct {
	Text        string         `json:"text,omitempty"`
	Inline      *InlineContent `json:"inline,omitempty"`
	CustomRules string         `json:"customRules,omitempty"`
}

// AuditRequest carries a recorded recitation with its target verse.
type AuditRequest struct {
	VerseText   string        `json:"verseText"`
	Recording   InlineContent `json:"recording"`
	CustomRules string        `json:"customRules,omitempty"`
}

// SpeechRequest carries text for synthesis.
type SpeechRequest struct {
	Text string `json:"text"`
}

// SpeechResponse carries synthesized PCM16 @24kHz audio. Empty data means
// the model produced nothing for the input.
type SpeechResponse struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
}

// TextResponse carries a plain-text or Markdown result.
type TextResponse struct {
	Text string `json:"text"`
}

// RulesPayload carries the persisted custom Tajweed rules.
type RulesPayload struct {
	Rules string `json:"rules"`
}
