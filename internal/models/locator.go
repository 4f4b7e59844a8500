// Package models defines core data structures for locators, chunks, topics, and citations.
package models

import (
	"fmt"
	"strconv"

	"github.com/hyperjump/shiken/pkg/utils"
)

// SourceKind identifies what kind of source material a locator points into.
type SourceKind string

const (
	SourceVideo      SourceKind = "video"
	SourceTranscript SourceKind = "transcript"
	SourceSlide      SourceKind = "slide"
	SourceExam       SourceKind = "exam"
)

// Locator identifies where a piece of text came from. It is immutable once
// created and is the sole join key between a chunk and its citation.
// Exactly one position field is meaningful for a given kind: StartSeconds and
// EndSeconds for video/transcript, SlideNumber for slide, QuestionID for exam.
type Locator struct {
	SourceKind   SourceKind `json:"source_kind"`
	SourceID     string     `json:"source_id"`
	StartSeconds float64    `json:"start_seconds,omitempty"`
	EndSeconds   float64    `json:"end_seconds,omitempty"`
	SlideNumber  int        `json:"slide_number,omitempty"`
	QuestionID   string     `json:"question_id,omitempty"`
}

// Validate checks that the locator has a known kind, a source ID, and the
// position field its kind requires.
func (l Locator) Validate() error {
	if l.SourceID == "" {
		return fmt.Errorf("locator missing source_id")
	}
	switch l.SourceKind {
	case SourceVideo, SourceTranscript:
		if l.StartSeconds < 0 || (l.EndSeconds != 0 && l.EndSeconds < l.StartSeconds) {
			return fmt.Errorf("locator has invalid time range [%v, %v]", l.StartSeconds, l.EndSeconds)
		}
	case SourceSlide:
		if l.SlideNumber <= 0 {
			return fmt.Errorf("locator missing slide_number")
		}
	case SourceExam:
		if l.QuestionID == "" {
			return fmt.Errorf("locator missing question_id")
		}
	default:
		return fmt.Errorf("unknown source kind %q", l.SourceKind)
	}
	return nil
}

// PositionKey returns the canonical string form of the locator's position,
// used in chunk and citation identity hashes.
func (l Locator) PositionKey() string {
	switch l.SourceKind {
	case SourceVideo, SourceTranscript:
		return strconv.FormatFloat(l.StartSeconds, 'f', 3, 64) + "-" + strconv.FormatFloat(l.EndSeconds, 'f', 3, 64)
	case SourceSlide:
		return strconv.Itoa(l.SlideNumber)
	case SourceExam:
		return l.QuestionID
	default:
		return ""
	}
}

// Key returns the canonical identity of the locator. Equal locators always
// produce equal keys; citation deduplication hangs off this.
func (l Locator) Key() string {
	return string(l.SourceKind) + "|" + l.SourceID + "|" + l.PositionKey()
}

// DisplayText returns the human-facing citation label for the locator.
func (l Locator) DisplayText() string {
	switch l.SourceKind {
	case SourceVideo, SourceTranscript:
		return "[vid " + utils.SecondsToTimecode(l.StartSeconds) + "]"
	case SourceSlide:
		return fmt.Sprintf("[slide %d]", l.SlideNumber)
	case SourceExam:
		return "[exam " + l.QuestionID + "]"
	default:
		return "[" + string(l.SourceKind) + "]"
	}
}
