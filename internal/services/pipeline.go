package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/Lllllllleong/documentnarrator/internal/models"
	"github.com/Lllllllleong/documentnarrator/internal/store"
	"golang.org/x/sync/singleflight"
)

const (
	flowImage    = "image"
	flowDocument = "document"
)

// PipelineDeps wires the pipeline's collaborators. Mirror is optional.
type PipelineDeps struct {
	Store       store.Store
	Acquirer    *Acquirer
	Describer   ImageDescriber
	Documents   DocumentSummarizer
	Speaker     *Speaker
	Mirror      ArtifactMirror
	ArtifactDir string
	PublicPath  string
}

// Pipeline runs one narration per request: dedup check, acquisition,
// summarization, normalization, synthesis and persistence, in that order.
type Pipeline struct {
	store       store.Store
	acquirer    *Acquirer
	describer   ImageDescriber
	documents   DocumentSummarizer
	speaker     *Speaker
	mirror      ArtifactMirror
	artifactDir string
	publicPath  string
	inflight    singleflight.Group
	now         func() time.Time
}

// NewPipeline builds a Pipeline from its dependencies.
func NewPipeline(d PipelineDeps) *Pipeline {
	return &Pipeline{
		store:       d.Store,
		acquirer:    d.Acquirer,
		describer:   d.Describer,
		documents:   d.Documents,
		speaker:     d.Speaker,
		mirror:      d.Mirror,
		artifactDir: d.ArtifactDir,
		publicPath:  d.PublicPath,
		now:         time.Now,
	}
}

// Result is the outcome of Narrate. Cached is set when the record came from
// an earlier run.
type Result struct {
	Record models.ProcessingRecord
	Cached bool
}

// run carries everything one request learns on its way through the stages.
// It never outlives the request.
type run struct {
	ref         models.SourceReference
	flow        string
	stage       Stage
	localPath   string
	ownsLocal   bool
	canonicalID string
	renamedFile string
	rawText     string
	narration   string
	audioPath   string
	mp3File     string
	logCtx      *slog.Logger
}

func (r *run) enter(stage Stage) {
	r.stage = stage
	r.logCtx.Info("Entering stage.", "stage", stage)
}

// NarrateImage runs the image flow for a staged upload.
func (p *Pipeline) NarrateImage(ctx context.Context, upload models.UploadedFile) (*Result, error) {
	return p.Narrate(ctx, upload)
}

// NarrateLink runs the document flow for a submitted pdfLink.
func (p *Pipeline) NarrateLink(ctx context.Context, pdfLink string) (*Result, error) {
	ref, err := ParseLink(pdfLink)
	if err != nil {
		return nil, err
	}
	return p.Narrate(ctx, ref)
}

// Narrate validates ref and runs the pipeline for it. Concurrent calls for the
// same source key share a single run. The shared run is not tied to any one
// caller's cancellation; each caller stops waiting when its own ctx is done.
func (p *Pipeline) Narrate(ctx context.Context, ref models.SourceReference) (*Result, error) {
	if err := ValidateSource(ref); err != nil {
		return nil, err
	}

	// Uploads are claimed so the run never depends on the caller's staged file.
	var claimed string
	if upload, ok := ref.(models.UploadedFile); ok {
		path, err := p.acquirer.ClaimUpload(upload.Path)
		if err != nil {
			return nil, err
		}
		claimed = path
		upload.Path = path
		ref = upload
	}
	release := func() {
		if claimed != "" {
			removeQuietly(slog.Default(), claimed)
		}
	}

	shared := context.WithoutCancel(ctx)
	ch := p.inflight.DoChan(ref.SourceKey(), func() (any, error) {
		return p.execute(shared, ref)
	})

	select {
	case <-ctx.Done():
		slog.Warn("Caller gave up waiting for narration.", "sourceKey", ref.SourceKey(), "error", ctx.Err())
		go func() {
			<-ch
			release()
		}()
		return nil, ctx.Err()
	case out := <-ch:
		release()
		if out.Err != nil {
			return nil, out.Err
		}
		res := *out.Val.(*Result)
		return &res, nil
	}
}

func (p *Pipeline) execute(ctx context.Context, ref models.SourceReference) (*Result, error) {
	r := &run{ref: ref, flow: flowFor(ref), stage: StageStart}
	r.logCtx = slog.With("sourceKey", ref.SourceKey(), "flow", r.flow)

	r.enter(StageDedupCheck)
	existing, err := p.store.Find(ctx, ref.SourceKey())
	if err != nil {
		r.logCtx.Warn("Dedup lookup failed; processing as new.", "error", err)
	}
	if existing != nil {
		r.logCtx.Info("Source already processed. Serving stored record.", "canonicalId", existing.CanonicalID)
		return &Result{Record: *existing, Cached: true}, nil
	}

	res, err := p.process(ctx, r)
	if err != nil {
		p.discard(r)
		return nil, p.fail(r, err)
	}
	r.enter(StageDone)
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, r *run) (*Result, error) {
	r.enter(StageAcquire)
	path, err := p.acquirer.Acquire(ctx, r.ref)
	if err != nil {
		return nil, err
	}
	r.localPath = path
	_, isUpload := r.ref.(models.UploadedFile)
	r.ownsLocal = !isUpload

	r.enter(StageSummarize)
	if r.flow == flowImage {
		err = p.describeImage(ctx, r)
	} else {
		err = p.summarizeDocument(ctx, r)
	}
	if err != nil {
		return nil, err
	}

	r.enter(StageNormalize)
	r.narration = NormalizeNarration(r.rawText)

	r.enter(StageSynthesize)
	r.audioPath, r.mp3File, err = p.speaker.Speak(ctx, r.canonicalID, r.narration)
	if err != nil {
		return nil, err
	}
	p.mirrorArtifacts(ctx, r)

	r.enter(StagePersist)
	rec := models.ProcessingRecord{
		SourceKey:   r.ref.SourceKey(),
		CanonicalID: r.canonicalID,
		RenamedFile: r.renamedFile,
		MP3File:     r.mp3File,
		Text:        r.narration,
		ProcessedAt: p.now().UTC(),
	}
	err = p.store.Append(ctx, rec)
	if errors.Is(err, store.ErrRecordExists) {
		// Another process finished the same source first; its record wins.
		if winner, findErr := p.store.Find(ctx, rec.SourceKey); findErr == nil && winner != nil {
			r.logCtx.Warn("Record appended concurrently elsewhere. Serving stored record.", "canonicalId", winner.CanonicalID)
			p.discardUnreferenced(r, winner)
			return &Result{Record: *winner, Cached: true}, nil
		}
	}
	if err != nil {
		return nil, PersistenceError("Failed to save processed data", err)
	}

	r.logCtx.Info("Narration complete.", "mp3File", rec.MP3File)
	return &Result{Record: rec}, nil
}

func (p *Pipeline) describeImage(ctx context.Context, r *run) error {
	upload := r.ref.(models.UploadedFile)
	id := canonicalFromFilename(upload.OriginalFilename)
	if !validCanonicalID(id) {
		return SummarizationError("sourceId is not available", fmt.Errorf("cannot derive an identifier from %q", upload.OriginalFilename))
	}
	r.canonicalID = id
	r.logCtx = r.logCtx.With("canonicalId", id)

	data, err := os.ReadFile(r.localPath)
	if err != nil {
		return SummarizationError("Failed to read uploaded file", err)
	}
	mediaType, _, _ := mime.ParseMediaType(upload.MIMEType)

	text, err := p.describer.Describe(ctx, data, mediaType)
	if err != nil {
		return SummarizationError("Failed to describe image", err)
	}
	r.rawText = text
	return nil
}

func (p *Pipeline) summarizeDocument(ctx context.Context, r *run) error {
	id, err := p.documents.AddFile(ctx, r.localPath)
	if err != nil {
		return SummarizationError("Failed to upload document for summarization", err)
	}
	if !validCanonicalID(id) {
		return SummarizationError("Failed to obtain sourceId", fmt.Errorf("unusable sourceId %q", id))
	}
	r.canonicalID = id
	r.logCtx = r.logCtx.With("canonicalId", id)

	renamed := filepath.Join(p.artifactDir, id+".pdf")
	if err := os.Rename(r.localPath, renamed); err != nil {
		return SummarizationError("Failed to rename document", err)
	}
	r.localPath = renamed
	r.renamedFile = p.publicPath + "/" + id + ".pdf"

	text, err := p.documents.Summarize(ctx, id)
	if err != nil {
		return SummarizationError("Failed to obtain summary", err)
	}
	r.rawText = text
	return nil
}

func (p *Pipeline) mirrorArtifacts(ctx context.Context, r *run) {
	if p.mirror == nil {
		return
	}
	paths := []string{r.audioPath}
	if r.renamedFile != "" {
		paths = append(paths, r.localPath)
	}
	if err := p.mirror.Mirror(ctx, r.canonicalID, paths...); err != nil {
		r.logCtx.Warn("Artifact mirror failed; local artifacts remain authoritative.", "error", err)
	}
}

// fail stamps the failing stage onto err and logs it.
func (p *Pipeline) fail(r *run, err error) error {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = newError(kindForStage(r.stage), r.stage, "pipeline failed", err)
	}
	perr.Stage = r.stage
	r.logCtx.Error("Pipeline stage failed", "stage", r.stage, "kind", perr.Kind, "error", perr)
	return perr
}

// discard removes the files a failed run created so a resubmission starts clean.
func (p *Pipeline) discard(r *run) {
	if r.ownsLocal && r.localPath != "" {
		removeQuietly(r.logCtx, r.localPath)
	}
	if r.audioPath != "" {
		removeQuietly(r.logCtx, r.audioPath)
	}
}

func (p *Pipeline) discardUnreferenced(r *run, winner *models.ProcessingRecord) {
	if r.ownsLocal && r.renamedFile != winner.RenamedFile {
		removeQuietly(r.logCtx, r.localPath)
	}
	if r.mp3File != winner.MP3File {
		removeQuietly(r.logCtx, r.audioPath)
	}
}

func removeQuietly(logCtx *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logCtx.Warn("Failed to remove pipeline file.", "path", path, "error", err)
	}
}

func flowFor(ref models.SourceReference) string {
	if _, ok := ref.(models.UploadedFile); ok {
		return flowImage
	}
	return flowDocument
}

func kindForStage(stage Stage) Kind {
	switch stage {
	case StageAcquire:
		return KindAcquisition
	case StageSummarize, StageNormalize:
		return KindSummarization
	case StageSynthesize:
		return KindSynthesis
	case StagePersist:
		return KindPersistence
	default:
		return KindValidation
	}
}

func canonicalFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// validCanonicalID reports whether id can safely name files in the artifact dir.
func validCanonicalID(id string) bool {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return false
	}
	for _, c := range id {
		if unicode.IsControl(c) {
			return false
		}
	}
	return true
}
