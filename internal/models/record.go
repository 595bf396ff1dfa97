package models

import "time"

// ProcessingRecord is the durable outcome of one successful narration run.
// The JSON keys match the historical processedLinks.json layout so existing
// record files keep loading.
type ProcessingRecord struct {
	SourceKey   string    `json:"pdfLink" firestore:"pdfLink"`
	CanonicalID string    `json:"sourceId,omitempty" firestore:"sourceId,omitempty"`
	RenamedFile string    `json:"renamedFile" firestore:"renamedFile"`
	MP3File     string    `json:"mp3File" firestore:"mp3File"`
	Text        string    `json:"text" firestore:"text"`
	ProcessedAt time.Time `json:"processedAt" firestore:"processedAt"`
}
