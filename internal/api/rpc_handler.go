package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/siteprobe/siteprobe/internal/middleware"
	"github.com/siteprobe/siteprobe/internal/probe"
	"github.com/siteprobe/siteprobe/internal/rpc"
)

const maxRPCBody = 64 << 10

// RPCHandler serves the probe method call endpoint
type RPCHandler struct {
	prober Prober
	logger *slog.Logger
}

// NewRPCHandler creates a new RPC handler
func NewRPCHandler(prober Prober, logger *slog.Logger) *RPCHandler {
	return &RPCHandler{prober: prober, logger: logger}
}

// Call handles POST /rpc and POST /xmlrpc
func (h *RPCHandler) Call(w http.ResponseWriter, r *http.Request) {
	reply := responseCodec(r)

	var req rpc.Request
	body := http.MaxBytesReader(w, r.Body, maxRPCBody)
	if err := rpc.ForContentType(r.Header.Get("Content-Type")).Decode(body, &req); err != nil {
		h.fault(w, reply, http.StatusBadRequest, rpc.NewFault(rpc.CodeParseError, "Parse error"))
		return
	}

	if req.Method != rpc.MethodProbe {
		h.fault(w, reply, http.StatusOK, rpc.NewFault(rpc.CodeMethodNotFound, "Method not found: "+req.Method))
		return
	}

	variables, err := req.Variables()
	if err != nil {
		var fault *rpc.Fault
		errors.As(err, &fault)
		h.fault(w, reply, http.StatusOK, fault)
		return
	}

	snap, err := h.prober.Probe(r.Context(), probe.Request{
		ProbeKey:  r.URL.Query().Get("probe_key"),
		ClientIP:  middleware.GetClientIP(r),
		Variables: variables,
	})
	if err != nil {
		var denied *probe.AccessDeniedError
		if errors.As(err, &denied) {
			h.fault(w, reply, http.StatusForbidden, rpc.NewFault(rpc.CodeAccessDenied, denied.Error()))
			return
		}
		h.logger.Error("Probe failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		h.fault(w, reply, http.StatusInternalServerError, rpc.NewFault(rpc.CodeInternal, "The probe could not be completed"))
		return
	}

	h.write(w, reply, http.StatusOK, rpc.Response{Result: snap})
}

func (h *RPCHandler) fault(w http.ResponseWriter, codec rpc.Codec, status int, fault *rpc.Fault) {
	h.write(w, codec, status, rpc.Response{Fault: fault})
}

func (h *RPCHandler) write(w http.ResponseWriter, codec rpc.Codec, status int, resp rpc.Response) {
	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(status)
	if err := codec.Encode(w, resp); err != nil {
		h.logger.Warn("Failed to encode RPC response", "error", err)
	}
}

// responseCodec honours an explicit Accept and otherwise answers in the
// encoding of the request
func responseCodec(r *http.Request) rpc.Codec {
	switch accept := r.Header.Get("Accept"); {
	case strings.Contains(accept, rpc.ContentTypeCBOR):
		return rpc.CBOR
	case strings.Contains(accept, rpc.ContentTypeJSON):
		return rpc.JSON
	}
	return rpc.ForContentType(r.Header.Get("Content-Type"))
}
