// Package boundary defines the command set and wire format used between the host and an
// isolation context. Nothing but encoded bytes crosses the boundary.
package boundary

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/robbyt/go-polyexpr/platform"
)

// Op enumerates the commands an execution proxy accepts.
type Op string

const (
	OpInstallResolver Op = "install_resolver"
	OpLoad            Op = "load"
	OpInvoke          Op = "invoke"
	OpSetField        Op = "set_field"
	OpUnload          Op = "unload"
)

// Request is one command sent to the proxy.
type Request struct {
	Op      Op                `json:"op"`
	Name    string            `json:"name,omitempty"`
	Path    string            `json:"path,omitempty"`
	Modules map[string]string `json:"modules,omitempty"`
	Value   *Value            `json:"value,omitempty"`
}

// Response is the proxy's answer. Exactly one of Value and Fault is meaningful.
type Response struct {
	Value *Value `json:"value,omitempty"`
	Fault *Fault `json:"fault,omitempty"`
}

// Code identifies a failure category in a Fault.
type Code string

const (
	CodeInvalidInput      Code = "invalid_input"
	CodeLoadFailure       Code = "load_failure"
	CodeUnknownEntryPoint Code = "unknown_entry_point"
	CodeUnknownField      Code = "unknown_field"
	CodeNotMarshallable   Code = "not_marshallable"
	CodePermissionDenied  Code = "permission_denied"
	CodeEvaluation        Code = "evaluation"
	CodeInternal          Code = "internal"
)

var codeErrors = map[Code]error{
	CodeInvalidInput:      platform.ErrInvalidInput,
	CodeLoadFailure:       platform.ErrLoadFailure,
	CodeUnknownEntryPoint: platform.ErrUnknownEntryPoint,
	CodeUnknownField:      platform.ErrUnknownField,
	CodeNotMarshallable:   platform.ErrExtensionNotMarshallable,
	CodePermissionDenied:  platform.ErrPermissionDenied,
	CodeEvaluation:        platform.ErrEvaluation,
	CodeInternal:          platform.ErrBoundaryFault,
}

// Fault describes a failure that happened inside the isolation context.
type Fault struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// FaultFrom classifies err by the first platform sentinel it wraps. A load failure is
// reported as such whatever caused it.
func FaultFrom(err error) *Fault {
	if err == nil {
		return nil
	}
	for _, code := range []Code{
		CodeUnknownEntryPoint,
		CodeUnknownField,
		CodeLoadFailure,
		CodeNotMarshallable,
		CodePermissionDenied,
		CodeEvaluation,
		CodeInvalidInput,
	} {
		if errors.Is(err, codeErrors[code]) {
			return &Fault{Code: code, Message: err.Error()}
		}
	}
	return &Fault{Code: CodeInternal, Message: err.Error()}
}

// Err rebuilds an error on the host side that matches the original sentinel with errors.Is.
func (f *Fault) Err() error {
	if f == nil {
		return nil
	}
	sentinel, ok := codeErrors[f.Code]
	if !ok {
		sentinel = platform.ErrBoundaryFault
	}
	return &remoteError{sentinel: sentinel, message: f.Message}
}

type remoteError struct {
	sentinel error
	message  string
}

func (e *remoteError) Error() string {
	return e.message
}

func (e *remoteError) Unwrap() error {
	return e.sentinel
}

// Result builds the response for a value or an error.
func Result(v *Value, err error) *Response {
	if err != nil {
		return &Response{Fault: FaultFrom(err)}
	}
	if v == nil {
		v = Nil()
	}
	return &Response{Value: v}
}

// Unpack returns the response value, or the error carried by its fault.
func (r *Response) Unpack() (*Value, error) {
	if r.Fault != nil {
		return nil, r.Fault.Err()
	}
	return r.Value, nil
}

func EncodeRequest(req *Request) ([]byte, error) {
	data, err := jsoniter.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrBoundaryFault, err)
	}
	return data, nil
}

func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := jsoniter.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrBoundaryFault, err)
	}
	return &req, nil
}

func EncodeResponse(resp *Response) ([]byte, error) {
	data, err := jsoniter.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrBoundaryFault, err)
	}
	return data, nil
}

func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := jsoniter.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrBoundaryFault, err)
	}
	return &resp, nil
}
