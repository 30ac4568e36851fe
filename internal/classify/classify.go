// Package classify decides whether an inbound message is a business inquiry
// and extracts intake hints from it. An LLM does the real work; a conservative
// keyword matcher stands in whenever the LLM is unavailable or misbehaves.
package classify

import "context"

// KnownFields is what is already on file for the sender. The classifier must
// never ask for a field that is already present.
type KnownFields struct {
	Name    string
	Address string
	City    string
}

// Input is one classification request.
type Input struct {
	Text    string
	History []string
	Known   KnownFields
}

// Result is the classifier verdict.
type Result struct {
	IsBusinessInquiry bool     `json:"is_business_inquiry"`
	Intent            string   `json:"intent"`
	Urgency           string   `json:"urgency"`
	Sentiment         string   `json:"sentiment"`
	RequiresMedia     bool     `json:"requires_media"`
	NeedsAddress      bool     `json:"needs_address"`
	SuggestedProducts []string `json:"suggested_products"`
	Summary           string   `json:"summary"`
	SuggestedResponse string   `json:"suggested_response"`
}

// Classifier classifies a single inbound message.
type Classifier interface {
	Classify(ctx context.Context, in Input) (Result, error)
}
