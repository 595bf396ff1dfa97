package models

import "fmt"

// SourceReference describes the input of a single pipeline run. It is a closed
// set of variants; the orchestrator dispatches on the concrete type.
type SourceReference interface {
	// SourceKey is the dedup key: the caller-supplied filename or link.
	SourceKey() string
	isSourceReference()
}

// UploadedFile is a file already staged on local disk by the HTTP layer.
type UploadedFile struct {
	Path             string
	OriginalFilename string
	MIMEType         string
}

// RemoteLink is a PDF reachable over HTTP. DriveFileID is set for cloud-drive
// sharing links; URL is then the link as submitted.
type RemoteLink struct {
	URL         string
	DriveFileID string
}

// LocalPath is a PDF on the server's filesystem.
type LocalPath struct {
	Path string
}

// StorageObject is a PDF in a Cloud Storage bucket.
type StorageObject struct {
	Bucket string
	Name   string
}

func (u UploadedFile) SourceKey() string  { return u.OriginalFilename }
func (l RemoteLink) SourceKey() string    { return l.URL }
func (p LocalPath) SourceKey() string     { return p.Path }
func (o StorageObject) SourceKey() string { return o.URI() }

// URI returns the gs:// form of the object.
func (o StorageObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

func (UploadedFile) isSourceReference()  {}
func (RemoteLink) isSourceReference()    {}
func (LocalPath) isSourceReference()     {}
func (StorageObject) isSourceReference() {}
