// Package faults defines the error taxonomy shared by every storypack
// component.
//
// Errors are tagged with one of the exported sentinel markers through Wrap so
// callers can branch with errors.Is while the message keeps the stage and
// operation that failed. Kind reduces any wrapped error to a stable label used
// for CLI exit codes and JSON output.
package faults
