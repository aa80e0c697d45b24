package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/payin/internal/logger"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
	// ErrOutcomeUnknown 请求超时或渠道 5xx，渠道侧结果未知
	ErrOutcomeUnknown = errors.New("stripe outcome unknown")
	// ErrRejected 渠道明确拒绝（4xx）
	ErrRejected = errors.New("stripe request rejected")
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
)

// Config Stripe 渠道配置。
type Config struct {
	SecretKey               string        `mapstructure:"secret_key"`
	WebhookSecret           string        `mapstructure:"webhook_secret"`
	APIBaseURL              string        `mapstructure:"api_base_url"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	WebhookToleranceSeconds int           `mapstructure:"webhook_tolerance_seconds"`
}

// APIError Stripe 返回的错误详情。
type APIError struct {
	StatusCode  int
	Type        string
	Code        string
	DeclineCode string
	Message     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe %d %s/%s: %s", e.StatusCode, e.Type, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrRejected
}

// Client Stripe PaymentIntent 接口客户端。
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient 创建 Stripe 客户端。
func NewClient(cfg Config) (*Client, error) {
	cfg.normalize()
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// WithHTTPClient 替换底层 HTTP 客户端（测试使用）。
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		return c
	}
	return &Client{cfg: c.cfg, httpClient: httpClient}
}

// Config 返回归一化后的配置。
func (c *Client) Config() Config {
	return c.cfg
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
}

// doRequest 发送请求并返回解析后的对象。
// 2xx 但响应体无法解析时记录告警并返回空对象。
func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values, idempotencyKey string) (map[string]interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.cfg.APIBaseURL + path
	var body *strings.Reader
	if form != nil && method != http.MethodGet {
		body = strings.NewReader(form.Encode())
	} else {
		if form != nil && len(form) > 0 {
			endpoint += "?" + form.Encode()
		}
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := readAll(resp)
	if err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, fmt.Errorf("%w: read response failed", ErrOutcomeUnknown)
		}
		return nil, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrOutcomeUnknown, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, parseAPIError(resp.StatusCode, respBody)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", ErrResponseInvalid, resp.StatusCode)
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		logger.Warnw("stripe_response_unparseable",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body_size", len(respBody),
		)
		return map[string]interface{}{}, nil
	}
	return raw, nil
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}
	raw, err := decodeRawMap(body)
	if err == nil {
		detail := readMap(raw, "error")
		apiErr.Type = readString(detail, "type")
		apiErr.Code = readString(detail, "code")
		apiErr.DeclineCode = readString(detail, "decline_code")
		apiErr.Message = readString(detail, "message")
	}
	if apiErr.Message == "" {
		apiErr.Message = "status " + strconv.Itoa(statusCode)
	}
	return apiErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
