package wfparse

import "fmt"

// ParseError is a structured parse or validation failure. Path points at
// the offending location in the document, e.g. "jobs.build.steps[2].uses".
// A ParseError is fatal: the workflow never produces a Run.
type ParseError struct {
	Source string
	Path   string
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	prefix := e.Path
	if prefix == "" {
		prefix = e.Source
	} else if e.Source != "" {
		prefix = e.Source + ": " + prefix
	}
	if e.Err != nil && e.Msg == "" {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

func errAt(source, path, format string, args ...any) *ParseError {
	return &ParseError{Source: source, Path: path, Msg: fmt.Sprintf(format, args...)}
}
