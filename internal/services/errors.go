package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies pipeline failures for the caller.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAcquisition   Kind = "acquisition"
	KindSummarization Kind = "summarization"
	KindSynthesis     Kind = "synthesis"
	KindPersistence   Kind = "persistence"
)

// Stage names a state of the per-request pipeline.
type Stage string

const (
	StageStart      Stage = "START"
	StageDedupCheck Stage = "DEDUP_CHECK"
	StageAcquire    Stage = "ACQUIRE"
	StageSummarize  Stage = "SUMMARIZE"
	StageNormalize  Stage = "NORMALIZE"
	StageSynthesize Stage = "SYNTHESIZE"
	StagePersist    Stage = "PERSIST"
	StageDone       Stage = "DONE"
)

// Error is a pipeline-fatal failure for one request.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, stage Stage, message string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// ValidationError reports bad caller input.
func ValidationError(message string, err error) *Error {
	return newError(KindValidation, StageStart, message, err)
}

// AcquisitionError reports a failed download or copy.
func AcquisitionError(message string, err error) *Error {
	return newError(KindAcquisition, StageAcquire, message, err)
}

// SummarizationError reports a failed understanding-service call.
func SummarizationError(message string, err error) *Error {
	return newError(KindSummarization, StageSummarize, message, err)
}

// SynthesisError reports a failed speech conversion.
func SynthesisError(message string, err error) *Error {
	return newError(KindSynthesis, StageSynthesize, message, err)
}

// PersistenceError reports a failed record write.
func PersistenceError(message string, err error) *Error {
	return newError(KindPersistence, StagePersist, message, err)
}

// HTTPStatus maps an error to the status code returned to the caller.
func HTTPStatus(err error) int {
	var perr *Error
	if errors.As(err, &perr) && perr.Kind == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// IsValidation reports whether err is caller input error.
func IsValidation(err error) bool {
	return HTTPStatus(err) == http.StatusBadRequest
}
