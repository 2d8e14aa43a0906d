// Package loquax talks to the Loquax web service, which renders Latin text
// with optional scansion marks and IPA transcription.
package loquax

import "context"

// TranslationRequest is the JSON body posted to the service endpoint.
// All three fields are always sent, including an empty Text.
type TranslationRequest struct {
	Text         string `json:"text"`
	WithScansion bool   `json:"with_scansion"`
	WithIPA      bool   `json:"with_ipa"`
}

// TranslationResponse holds the only field the client consumes from the
// service reply. Any other fields are ignored.
type TranslationResponse struct {
	Translation string `json:"translation"`
}

// Translator is implemented by anything that can perform one request/response
// exchange with the service.
type Translator interface {
	Translate(ctx context.Context, req TranslationRequest) (*TranslationResponse, error)
}
