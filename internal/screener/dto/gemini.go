package dto

// GeminiAPIRequest is the generateContent request body.
type GeminiAPIRequest struct {
	Contents []Content `json:"contents"`
}

// Content is a single message in a Gemini request or response.
type Content struct {
	Parts []Part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

// Part is one text fragment of a content block.
type Part struct {
	Text string `json:"text"`
}

// GeminiCandidate is one generated answer in a Gemini response.
type GeminiCandidate struct {
	Content Content `json:"content"`
}

// GeminiAPIResponse is the generateContent response body.
type GeminiAPIResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

// NewsSentimentResult is the JSON document the sentiment prompt asks the
// model to emit.
type NewsSentimentResult struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}
