package speechtotext

import "net/http"

type TranscriptionOptions struct {
	HTTPClient *http.Client
}

type TranscriptionOption func(*TranscriptionOptions)

func WithHTTPClient(client *http.Client) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if client != nil {
			o.HTTPClient = client
		}
	}
}
