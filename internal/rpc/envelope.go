// Package rpc is the wire format of the probe endpoint: a method call
// envelope carried as JSON or CBOR, and the fault returned on failure.
package rpc

import (
	"fmt"
)

// MethodProbe is the only method the endpoint serves
const MethodProbe = "probe"

// Fault codes
const (
	CodeAccessDenied   = 403
	CodeInternal       = 500
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// Request is a method call. Params are positional; the probe method takes
// one optional list of variable names.
type Request struct {
	Method string `json:"method" cbor:"method"`
	Params []any  `json:"params" cbor:"params"`
}

// Response carries either a result or a fault
type Response struct {
	Result any    `json:"result,omitempty" cbor:"result,omitempty"`
	Fault  *Fault `json:"fault,omitempty" cbor:"fault,omitempty"`
}

// Fault is a method call failure
type Fault struct {
	Code    int    `json:"faultCode" cbor:"faultCode"`
	Message string `json:"faultString" cbor:"faultString"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.Message)
}

// NewFault creates a fault
func NewFault(code int, message string) *Fault {
	return &Fault{Code: code, Message: message}
}

// NewProbeRequest builds the envelope for a probe call
func NewProbeRequest(variables []string) Request {
	params := make([]any, 0, len(variables))
	for _, v := range variables {
		params = append(params, v)
	}
	return Request{Method: MethodProbe, Params: []any{params}}
}

// Variables extracts the requested variable names from the probe call's
// params. Missing params mean no variables.
func (r Request) Variables() ([]string, error) {
	if len(r.Params) == 0 || r.Params[0] == nil {
		return nil, nil
	}

	list, ok := r.Params[0].([]any)
	if !ok {
		return nil, NewFault(CodeInvalidParams, "variables must be a list of names")
	}

	names := make([]string, 0, len(list))
	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return nil, NewFault(CodeInvalidParams, fmt.Sprintf("variable name must be a string, got %T", item))
		}
		names = append(names, name)
	}
	return names, nil
}
