package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007

	// Upload session errors (2000-2999)
	ErrSessionNotFound      = 2000
	ErrSessionExpired       = 2001
	ErrChunkIndexOutOfRange = 2002
	ErrChunkSetIncomplete   = 2003
	ErrFileTooLarge         = 2004
	ErrChunkTooLarge        = 2005
	ErrSizeMismatch         = 2006

	// File access errors (3000-3999)
	ErrFileNotFound     = 3000
	ErrFileExpired      = 3001
	ErrPasswordRequired = 3002
	ErrInvalidPassword  = 3003

	// Storage errors (4000-4999)
	ErrStorageFailed = 4000
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},

	// Upload session errors
	ErrSessionNotFound:      {ErrSessionNotFound, http.StatusNotFound, "Upload session not found"},
	ErrSessionExpired:       {ErrSessionExpired, http.StatusGone, "Upload session expired"},
	ErrChunkIndexOutOfRange: {ErrChunkIndexOutOfRange, http.StatusBadRequest, "Chunk index out of range"},
	ErrChunkSetIncomplete:   {ErrChunkSetIncomplete, http.StatusPreconditionFailed, "Chunk set incomplete"},
	ErrFileTooLarge:         {ErrFileTooLarge, http.StatusRequestEntityTooLarge, "File size exceeds limit"},
	ErrChunkTooLarge:        {ErrChunkTooLarge, http.StatusBadRequest, "Chunk exceeds the session layout"},
	ErrSizeMismatch:         {ErrSizeMismatch, http.StatusPreconditionFailed, "Uploaded size does not match declared size"},

	// File access errors
	// Expired files deliberately surface as 404: expiry is an internal state,
	// callers only learn the file is gone.
	ErrFileNotFound:     {ErrFileNotFound, http.StatusNotFound, "File not found"},
	ErrFileExpired:      {ErrFileExpired, http.StatusNotFound, "File not found"},
	ErrPasswordRequired: {ErrPasswordRequired, http.StatusUnauthorized, "Password required"},
	ErrInvalidPassword:  {ErrInvalidPassword, http.StatusForbidden, "Invalid password"},

	// Storage errors
	ErrStorageFailed: {ErrStorageFailed, http.StatusInternalServerError, "Storage operation failed"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
