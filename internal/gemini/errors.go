package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a generation failure so callers can show an actionable message.
type Kind int

const (
	KindGeneric Kind = iota
	KindConfiguration
	KindProtocol
	KindCredential
	KindNetwork
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindProtocol:
		return "protocol"
	case KindCredential:
		return "credential"
	case KindNetwork:
		return "network"
	case KindUnavailable:
		return "service_unavailable"
	default:
		return "generic"
	}
}

// Error is returned by Client.Generate for every failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gemini %s error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, KindGeneric if err is not an *Error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindGeneric
}

// User-facing messages, one per kind.
const (
	MsgConfiguration = "Gemini API key not configured. Check the GEMINI_API_KEY setting."
	MsgProtocol      = "Chat history format error. Try refreshing the page."
	MsgCredential    = "API key is invalid or does not have permission. Check your Gemini API key."
	MsgNetwork       = "Network error. Check your internet connection."
	MsgUnavailable   = "Gemini model error. The model may be unavailable. Please try again later."
	msgGenericPrefix = "Failed to generate response: "
)

// UserMessage maps any error to the text shown to the visitor.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ge *Error
	if !errors.As(err, &ge) {
		return msgGenericPrefix + err.Error()
	}
	switch ge.Kind {
	case KindConfiguration:
		return MsgConfiguration
	case KindProtocol:
		return MsgProtocol
	case KindCredential:
		return MsgCredential
	case KindNetwork:
		return MsgNetwork
	case KindUnavailable:
		return MsgUnavailable
	default:
		if ge.Detail != "" {
			return msgGenericPrefix + ge.Detail
		}
		return msgGenericPrefix + ge.Error()
	}
}

func classify(status int, apiStatus, message string) Kind {
	lower := strings.ToLower(message)
	switch {
	// Any backend complaint about the key itself needs the operator to
	// fix GEMINI_API_KEY, whether it is missing or rejected.
	case strings.Contains(lower, "api key"):
		return KindConfiguration
	case strings.Contains(message, "First content should be with role"),
		strings.Contains(lower, "multiturn requests alternate"):
		return KindProtocol
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		apiStatus == "PERMISSION_DENIED", apiStatus == "UNAUTHENTICATED",
		strings.Contains(lower, "permission"):
		return KindCredential
	case status == http.StatusNotFound, status == http.StatusServiceUnavailable,
		apiStatus == "NOT_FOUND", apiStatus == "UNAVAILABLE",
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "not supported"):
		return KindUnavailable
	default:
		return KindGeneric
	}
}
