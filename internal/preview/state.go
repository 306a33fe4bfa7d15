package preview

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/linkpreview/internal/microlink"
)

// User-visible status messages.
const (
	FetchingMessage   = "Fetching link preview..."
	FetchErrorMessage = "Could not fetch link preview."
)

// Phase is a controller state.
type Phase int

// Controller phases.
const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseSuccess
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseSuccess:
		return "success"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Fields mirrors the sibling form inputs filled from fetched metadata.
type Fields struct {
	Description string
	Image       string
	Title       string
}

// State is the ephemeral per-form preview state.
type State struct {
	URL            string
	Phase          Phase
	Fields         Fields
	PreviewVisible bool
	Message        string
	// Err is the failure reason when Phase is PhaseFailed.
	Err        error
	Generation uint64
}

// StatusError reports a response whose status was not "success".
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("microlink status %q", e.Status)
}

// begin returns the cleared state for a new cycle.
func begin(input string, generation uint64) State {
	s := State{URL: input, Generation: generation, Phase: PhaseIdle}
	if input != "" {
		s.Phase = PhaseFetching
		s.Message = FetchingMessage
	}
	return s
}

// resolve applies a fetch outcome to a Fetching state.
func resolve(s State, resp microlink.Response, err error, hasPreview bool) State {
	next := State{URL: s.URL, Generation: s.Generation}
	switch {
	case err != nil:
		next.Phase = PhaseFailed
		next.Err = err
		next.Message = errorText(err)
	case resp.Status != microlink.StatusSuccess:
		next.Phase = PhaseFailed
		next.Err = &StatusError{Status: resp.Status}
		next.Message = FetchErrorMessage
	default:
		next.Phase = PhaseSuccess
		next.Fields = fieldsFrom(resp.Data)
		next.PreviewVisible = hasPreview
	}
	return next
}

func fieldsFrom(data microlink.Payload) Fields {
	description, _ := data.Description()
	image, _ := data.Image()
	title, _ := data.Title()
	return Fields{Description: description, Image: image, Title: title}
}

func errorText(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return FetchErrorMessage
	}
	return msg
}

// IsStatusError reports whether err came from a non-success response.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
