package texttospeech

import "net/http"

type SynthesisOptions struct {
	// Language is the text_language value sent with each request.
	Language string

	HTTPClient *http.Client
}

type SynthesisOption func(*SynthesisOptions)

func WithLanguage(language string) SynthesisOption {
	return func(o *SynthesisOptions) {
		if language != "" {
			o.Language = language
		}
	}
}

func WithHTTPClient(client *http.Client) SynthesisOption {
	return func(o *SynthesisOptions) {
		if client != nil {
			o.HTTPClient = client
		}
	}
}
