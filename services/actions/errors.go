// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package actions

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable failure class carried on every pipeline
// error. All failures are request-scoped; nothing here is process-fatal.
type ErrorCode string

const (
	// CodeParse means the model's reply held no parseable JSON object.
	CodeParse ErrorCode = "PARSE_ERROR"
	// CodeValidation means required tool fields are missing or malformed.
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	// CodeNotFound means the action id is unknown or has expired.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeAuthRequired means the tenant has no usable token.
	CodeAuthRequired ErrorCode = "AUTH_REQUIRED"
	// CodeUnsupportedTool means the tool has no registered handler.
	CodeUnsupportedTool ErrorCode = "UNSUPPORTED_TOOL"
	// CodeUpstream means the tool's API rejected or failed the call.
	CodeUpstream ErrorCode = "UPSTREAM_ERROR"
)

// ActionError is the pipeline's typed error. It wraps an underlying cause
// when one exists and carries an upstream HTTP status for CodeUpstream.
type ActionError struct {
	Code    ErrorCode
	Message string
	// UpstreamStatus is the third-party API's HTTP status, when the failure
	// came from an adapter call. Zero otherwise.
	UpstreamStatus int
	Err            error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ActionError) Unwrap() error { return e.Err }

// NewParseError reports unparseable model output.
func NewParseError(msg string, err error) *ActionError {
	return &ActionError{Code: CodeParse, Message: msg, Err: err}
}

// NewValidationError reports missing or malformed request fields.
func NewValidationError(msg string) *ActionError {
	return &ActionError{Code: CodeValidation, Message: msg}
}

// NewNotFoundError reports an unknown or expired action id.
func NewNotFoundError(id string) *ActionError {
	return &ActionError{Code: CodeNotFound, Message: fmt.Sprintf("action %q not found or expired", id)}
}

// NewAuthRequiredError reports a tenant without a usable token.
func NewAuthRequiredError(tenant string, err error) *ActionError {
	return &ActionError{
		Code:    CodeAuthRequired,
		Message: fmt.Sprintf("tenant %q must (re)authorize", tenant),
		Err:     err,
	}
}

// NewUnsupportedToolError reports a tool with no registered handler.
func NewUnsupportedToolError(tool string) *ActionError {
	return &ActionError{Code: CodeUnsupportedTool, Message: fmt.Sprintf("unsupported tool %q", tool)}
}

// NewUpstreamError wraps an adapter failure, keeping the upstream status
// when known.
func NewUpstreamError(tool string, status int, err error) *ActionError {
	return &ActionError{
		Code:           CodeUpstream,
		Message:        fmt.Sprintf("tool %s call failed", tool),
		UpstreamStatus: status,
		Err:            err,
	}
}

// CodeOf extracts the error code, or empty for non-pipeline errors.
func CodeOf(err error) ErrorCode {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
