package models

// These structs define the JSON payloads of the ingress HTTP surface.

// PDFLinkRequest is the body of POST /submit-pdf-link.
type PDFLinkRequest struct {
	PDFLink string `json:"pdfLink"`
}

// ImageResponse is returned by POST /upload-image.
type ImageResponse struct {
	Message     string `json:"message"`
	PDFLink     string `json:"pdfLink"`
	RenamedFile string `json:"renamedFile"`
	MP3File     string `json:"mp3File"`
	Text        string `json:"text"`
}

// PDFLinkResponse is returned by POST /submit-pdf-link.
type PDFLinkResponse struct {
	Message      string `json:"message"`
	Text         string `json:"text"`
	RenamedFile  string `json:"renamedFile"`
	MP3File      string `json:"mp3File"`
	OriginalLink string `json:"originalLink"`
}

// ErrorResponse is returned for 4xx and 5xx outcomes. Error is only set for
// pipeline-fatal failures.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// StorageEvent is the payload of a Cloud Storage object-finalized event.
type StorageEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}
