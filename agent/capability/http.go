package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/crewcheck/agent/profiles"
	"github.com/BaSui01/crewcheck/agent/tasks"
	"github.com/BaSui01/crewcheck/internal/ctxkeys"
	"github.com/BaSui01/crewcheck/internal/tlsutil"
	"github.com/BaSui01/crewcheck/types"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	defaultInvokePath = "/v1/tasks/invoke"
	maxErrorBody      = 512
	maxOutcomeBody    = 8 << 20
)

// HTTPConfig configures the backend client.
type HTTPConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Path    string        `yaml:"path" json:"path"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// JWTSecret signs a short-lived HS256 token per request. Empty disables auth.
	JWTSecret   string        `yaml:"jwt_secret" json:"-"`
	JWTIssuer   string        `yaml:"jwt_issuer" json:"jwt_issuer"`
	JWTAudience string        `yaml:"jwt_audience" json:"jwt_audience"`
	TokenTTL    time.Duration `yaml:"token_ttl" json:"token_ttl"`

	Headers map[string]string     `yaml:"headers" json:"headers"`
	TLS     tlsutil.ClientOptions `yaml:"tls" json:"tls"`
}

// DefaultHTTPConfig returns the backend client defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Path:      defaultInvokePath,
		Timeout:   60 * time.Second,
		JWTIssuer: "crewcheck",
		TokenTTL:  5 * time.Minute,
	}
}

// InvokeRequest is the body posted to the backend.
type InvokeRequest struct {
	RunID string       `json:"run_id,omitempty"`
	Agent AgentPayload `json:"agent"`
	Task  TaskPayload  `json:"task"`
}

// AgentPayload is the agent part of an InvokeRequest.
type AgentPayload struct {
	ID           string   `json:"id"`
	Role         string   `json:"role"`
	Objective    string   `json:"objective,omitempty"`
	Persona      string   `json:"persona,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// TaskPayload is the task part of an InvokeRequest. Assertions are not sent.
type TaskPayload struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// HTTPCapability invokes tasks against the assistant backend over HTTP.
type HTTPCapability struct {
	cfg    HTTPConfig
	url    string
	client *http.Client
	now    func() time.Time
	logger *zap.Logger
}

// NewHTTPCapability creates the backend client.
func NewHTTPCapability(cfg HTTPConfig, logger *zap.Logger) (*HTTPCapability, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		return nil, types.NewError(types.ErrInvalidDefinition, "capability base_url is required")
	}
	if cfg.Path == "" {
		cfg.Path = defaultInvokePath
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 5 * time.Minute
	}
	tlsCfg, err := tlsutil.ClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "invalid capability TLS settings").WithCause(err)
	}
	return &HTTPCapability{
		cfg:    cfg,
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Path, "/"),
		client: tlsutil.SecureHTTPClient(cfg.Timeout, tlsCfg),
		now:    time.Now,
		logger: logger.With(zap.String("component", "http_capability")),
	}, nil
}

// Invoke implements crews.Capability.
func (c *HTTPCapability) Invoke(ctx context.Context, agent profiles.AgentProfile, task tasks.TaskSpec) (*types.Outcome, error) {
	runID, _ := ctxkeys.RunID(ctx)
	body, err := json.Marshal(InvokeRequest{
		RunID: runID,
		Agent: AgentPayload{
			ID:           agent.ID,
			Role:         agent.Role,
			Objective:    agent.Objective,
			Persona:      agent.Persona,
			Capabilities: agent.Capabilities,
		},
		Task: TaskPayload{ID: task.ID, Description: task.Description, Tags: task.Tags},
	})
	if err != nil {
		return nil, types.PermanentFailure("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, types.PermanentFailure("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if runID != "" {
		req.Header.Set("X-Run-ID", runID)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if c.cfg.JWTSecret != "" {
		token, err := c.sign(runID, agent.ID, task.ID)
		if err != nil {
			return nil, types.PermanentFailure("failed to sign token", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var urlTimeout interface{ Timeout() bool }
		if errors.As(err, &urlTimeout) && urlTimeout.Timeout() {
			return nil, types.NewError(types.ErrTimeout, "backend request timed out").WithRetryable(true).WithCause(err)
		}
		return nil, types.TransientFailure("backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		mapped := MapHTTPError(resp.StatusCode, truncate(strings.TrimSpace(string(msg)), maxErrorBody))
		c.logger.Debug("backend rejected task",
			zap.String("task_id", task.ID),
			zap.Int("status", resp.StatusCode),
			zap.Bool("retryable", mapped.Retryable))
		return nil, mapped.WithSubject(task.ID)
	}

	var out types.Outcome
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxOutcomeBody)).Decode(&out); err != nil {
		return nil, types.PermanentFailure("failed to decode backend outcome", err).WithSubject(task.ID)
	}
	if !out.HasTimestamps() {
		out.StartedAt = start
		out.EndedAt = c.now()
	}
	if out.Duration == 0 {
		out.Duration = out.EndedAt.Sub(out.StartedAt)
	}
	return &out, nil
}

func (c *HTTPCapability) sign(runID, agentID, taskID string) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"sub":     agentID,
		"task_id": taskID,
		"iat":     now.Unix(),
		"exp":     now.Add(c.cfg.TokenTTL).Unix(),
	}
	if runID != "" {
		claims["run_id"] = runID
	}
	if c.cfg.JWTIssuer != "" {
		claims["iss"] = c.cfg.JWTIssuer
	}
	if c.cfg.JWTAudience != "" {
		claims["aud"] = c.cfg.JWTAudience
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}
