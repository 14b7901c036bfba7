package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/siteprobe/siteprobe/internal/probe"
	"github.com/siteprobe/siteprobe/internal/rpc"
)

// SelfTest probes the site through its own public endpoint
type SelfTest struct {
	config    probe.ConfigReader
	client    *rpc.Client
	variables []string
}

// NewSelfTest creates a self-test that calls client with the configured probe
// key and requests variables
func NewSelfTest(config probe.ConfigReader, client *rpc.Client, variables []string) *SelfTest {
	return &SelfTest{config: config, client: client, variables: variables}
}

// Run performs the probe call and returns the decoded result
func (s *SelfTest) Run(ctx context.Context) (any, error) {
	settings, err := s.config.Config(ctx, probe.SettingsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to read probe settings: %w", err)
	}

	result, err := s.client.Probe(ctx, settings.String(probe.KeyProbeKey), s.variables)
	if err != nil {
		return nil, fmt.Errorf("self-test against %s failed: %w", s.client.Endpoint(), err)
	}
	return result, nil
}

// SelfTestHandler exposes the self-test to administrators
type SelfTestHandler struct {
	selfTest *SelfTest
	logger   *slog.Logger
}

// NewSelfTestHandler creates a new self-test handler
func NewSelfTestHandler(selfTest *SelfTest, logger *slog.Logger) *SelfTestHandler {
	return &SelfTestHandler{selfTest: selfTest, logger: logger}
}

// Get handles GET /api/v1/probe/self
func (h *SelfTestHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.selfTest.Run(r.Context())
	var fault *rpc.Fault
	if errors.As(err, &fault) {
		// The site answered; show the fault as it came back
		h.logger.Warn("Self-test returned a fault", "code", fault.Code, "message", fault.Message)
		sendIndentedJSON(w, http.StatusOK, rpc.Response{Fault: fault})
		return
	}
	if err != nil {
		h.logger.Warn("Self-test failed", "error", err)
		sendError(w, r, http.StatusBadGateway, "SELF_TEST_FAILED", "Self-test failed", err.Error())
		return
	}
	sendIndentedJSON(w, http.StatusOK, result)
}
