package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/sms-agent/internal/timeutil"
)

const (
	apiKeyHeader        = "x-api-key"
	clientVersionHeader = "X-Client-Version"
)

// ErrNotFound 后台查无此资源
var ErrNotFound = errors.New("backend: not found")

// ErrInvalidPayload 响应成功但载荷无法解码。
// 载荷坏了重取不会变好，调用方按"没有任务"处理。
var ErrInvalidPayload = errors.New("backend: invalid payload")

// Config 客户端构造参数。apiKey/baseURL 在构造时一次性解析，
// 不在调用路径里回读全局设置。
type Config struct {
	BaseURL       string
	APIKey        string
	ClientVersion string
	Timeout       time.Duration
	Retries       int
	Backoff       []time.Duration
}

// Client 网关后台 HTTP 客户端。
// 事件上报永不上抛：传输/解析错误一律折叠为布尔结果，
// 外层按各自的重投递策略处理。
type Client struct {
	http    *http.Client
	baseURL string
	cfg     Config
	log     *zap.Logger
}

// New 创建后台客户端
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		log:     log,
	}
}

// GetOutstandingMessage 按 id 领取单个待处理任务。
// 查无返回 ErrNotFound，载荷坏返回 ErrInvalidPayload，
// 两者都是"没有任务"；传输失败另计，由调用方裁决是否重投递。
func (c *Client) GetOutstandingMessage(ctx context.Context, messageID string) (*Message, error) {
	endpoint := c.baseURL + "/v1/messages/outstanding?message_id=" + url.QueryEscape(messageID)

	code, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch outstanding message: %w", err)
	}
	if code == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("fetch outstanding message: http %d", code)
	}

	var resp messageResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data == nil {
		c.log.Error("cannot decode outstanding message payload",
			zap.String("message_id", messageID), zap.Error(err))
		return nil, fmt.Errorf("decode outstanding message: %w", ErrInvalidPayload)
	}
	return resp.Data, nil
}

// SendSentEvent 上报 SENT
func (c *Client) SendSentEvent(ctx context.Context, messageID string, at time.Time) bool {
	return c.sendEvent(ctx, messageID, EventSent, nil, at)
}

// SendDeliveredEvent 上报 DELIVERED
func (c *Client) SendDeliveredEvent(ctx context.Context, messageID string, at time.Time) bool {
	return c.sendEvent(ctx, messageID, EventDelivered, nil, at)
}

// SendFailedEvent 上报 FAILED 及原因
func (c *Client) SendFailedEvent(ctx context.Context, messageID string, at time.Time, reason string) bool {
	return c.sendEvent(ctx, messageID, EventFailed, &reason, at)
}

// sendEvent 消息事件上报。
// 404 是幂等成功：消息已被后台终态化，事件只是冗余，不算失败。
func (c *Client) sendEvent(ctx context.Context, messageID, event string, reason *string, at time.Time) bool {
	endpoint := c.baseURL + "/v1/messages/" + url.PathEscape(messageID) + "/events"
	payload := eventRequest{EventName: event, Reason: reason, Timestamp: timeutil.Format(at)}

	code, body, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		c.log.Warn("event report transport failure",
			zap.String("message_id", messageID), zap.String("event", event), zap.Error(err))
		return false
	}
	if code == http.StatusNotFound {
		c.log.Debug("message already finalized server-side",
			zap.String("message_id", messageID), zap.String("event", event))
		return true
	}
	if code < 200 || code >= 300 {
		c.log.Warn("event report rejected",
			zap.String("message_id", messageID), zap.String("event", event),
			zap.Int("code", code), zap.ByteString("body", body))
		return false
	}

	c.log.Info("event reported",
		zap.String("message_id", messageID), zap.String("event", event))
	return true
}

// Receive 转发一条来信。4xx 视为不可重试的畸形请求，只丢弃并记日志。
func (c *Client) Receive(ctx context.Context, req ReceiveRequest) bool {
	code, body, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/messages/receive", req)
	if err != nil {
		c.log.Warn("receive report transport failure", zap.String("from", req.From), zap.Error(err))
		return false
	}
	if code >= 400 && code < 500 {
		c.log.Error("receive report rejected as malformed",
			zap.Int("code", code), zap.ByteString("body", body))
		return false
	}
	if code < 200 || code >= 300 {
		return false
	}
	return true
}

// StoreMissedCall 上报未接来电，重试语义与 Receive 相同
func (c *Client) StoreMissedCall(ctx context.Context, req MissedCallRequest) bool {
	code, body, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/messages/calls/missed", req)
	if err != nil {
		c.log.Warn("missed call report transport failure", zap.String("from", req.From), zap.Error(err))
		return false
	}
	if code >= 400 && code < 500 {
		c.log.Error("missed call report rejected as malformed",
			zap.Int("code", code), zap.ByteString("body", body))
		return false
	}
	if code < 200 || code >= 300 {
		return false
	}
	return true
}

// StoreHeartbeat 上报一次覆盖全部活跃 SIM 的心跳
func (c *Client) StoreHeartbeat(ctx context.Context, phoneNumbers []string, charging bool) bool {
	payload := heartbeatRequest{PhoneNumbers: phoneNumbers, Charging: charging}
	code, body, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/heartbeats", payload)
	if err != nil {
		c.log.Warn("heartbeat transport failure", zap.Error(err))
		return false
	}
	if code < 200 || code >= 300 {
		c.log.Warn("heartbeat rejected", zap.Int("code", code), zap.ByteString("body", body))
		return false
	}
	return true
}

// UpdatePhone 注册 upsert，返回账号标识
func (c *Client) UpdatePhone(ctx context.Context, phoneNumber, sim, fcmToken string) (*Phone, error) {
	return c.putPhone(ctx, c.baseURL+"/v1/phones", phoneNumber, sim, fcmToken)
}

// UpdateFcmToken 推送令牌 upsert
func (c *Client) UpdateFcmToken(ctx context.Context, phoneNumber, sim, fcmToken string) (*Phone, error) {
	return c.putPhone(ctx, c.baseURL+"/v1/phones/fcm-token", phoneNumber, sim, fcmToken)
}

func (c *Client) putPhone(ctx context.Context, endpoint, phoneNumber, sim, fcmToken string) (*Phone, error) {
	payload := phoneRequest{PhoneNumber: phoneNumber, SIM: sim, FcmToken: fcmToken}

	code, body, err := c.do(ctx, http.MethodPut, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("update phone: %w", err)
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("update phone: http %d", code)
	}

	var resp phoneResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data == nil {
		return nil, fmt.Errorf("decode phone payload: invalid payload")
	}
	return resp.Data, nil
}

// ValidateAPIKey 校验凭据（交互式登录路径，错误会呈现给人）
func (c *Client) ValidateAPIKey(ctx context.Context) error {
	code, _, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/users/me", nil)
	if err != nil {
		return fmt.Errorf("validate api key: %w", err)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("validate api key: http %d", code)
	}
	return nil
}

// do 发起一次请求，5xx 与传输错误按退避表做有限重试。
// 非 5xx 响应直接返回给调用方裁决，长重试交给外层的重投递机制。
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (int, []byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal payload: %w", err)
		}
	}

	var respBody []byte
	var code int
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
		req.Header.Set(clientVersionHeader, c.cfg.ClientVersion)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			code = resp.StatusCode
			rb, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			respBody = rb
			if code < 500 {
				return code, respBody, nil
			}
			lastErr = nil
		}

		if attempt == c.cfg.Retries {
			break
		}
		backoff := c.cfg.Backoff[min(attempt, len(c.cfg.Backoff)-1)]
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr != nil {
		return 0, nil, lastErr
	}
	return code, respBody, nil
}
