package interview

import (
	"errors"

	"github.com/pavelanni/interviewer/internal/llm"
)

var (
	// ErrInvalidReference is returned when a question id does not name a
	// record of the caller's session.
	ErrInvalidReference = errors.New("invalid question reference")
	// ErrUpstream is returned when the model call fails or times out.
	ErrUpstream = errors.New("model call failed")
	// ErrMalformedOutput is returned when the model output does not match the
	// declared shape.
	ErrMalformedOutput = llm.ErrMalformedOutput
)
