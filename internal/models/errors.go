package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoTranscriptAvailable  = errors.New("no transcript available")
	ErrEmbeddingService       = errors.New("embedding service error")
	ErrDimensionMismatch      = errors.New("embedding dimension mismatch")
	ErrGeneration             = errors.New("generation failed")
	ErrGenerationTimeout      = errors.New("generation timed out")
	ErrClientDisconnected     = errors.New("client disconnected")
	ErrPersistence            = errors.New("persistence error")
	ErrInvalidVideoIdentifier = errors.New("invalid video identifier")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrDuplicateGeneration    = errors.New("generation already started for this question")
	ErrNotFound               = errors.New("not found")
)

// StrategyFailure records why one transcript strategy produced nothing.
type StrategyFailure struct {
	Strategy string
	Err      error
}

// TranscriptError is returned once every transcript strategy is exhausted, or
// with Cause set when the fetch was interrupted before that. Only the former
// matches ErrNoTranscriptAvailable.
type TranscriptError struct {
	VideoID  string
	Failures []StrategyFailure
	Cause    error
}

func (e *TranscriptError) Error() string {
	var b strings.Builder
	if e.Cause != nil {
		fmt.Fprintf(&b, "transcript fetch for video %s interrupted", e.VideoID)
	} else {
		fmt.Fprintf(&b, "captions unavailable for video %s", e.VideoID)
	}
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.Strategy, f.Err)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "; %v", e.Cause)
	}
	return b.String()
}

func (e *TranscriptError) Is(target error) bool {
	return target == ErrNoTranscriptAvailable && e.Cause == nil
}

func (e *TranscriptError) Unwrap() error { return e.Cause }

// StageError tags a pipeline failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// GenerationError is a stream that did not complete.
type GenerationError struct {
	QuestionID string
	Err        error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation for question %s did not complete: %v", e.QuestionID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError is a non-fatal failure to save a streamed answer.
type PersistenceError struct {
	QuestionID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("answer for question %s was shown but not saved: %v", e.QuestionID, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
