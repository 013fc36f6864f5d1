package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// HTTPOptions HTTP 传输配置
type HTTPOptions struct {
	Timeout time.Duration
	Headers map[string]string
	Logger  *zap.Logger
}

// HTTPTransport 基于 HTTP POST 的 JSON-RPC 传输
//
// 每个请求独立发送，没有推送能力。
type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
	logger     *zap.Logger
	closed     atomic.Bool
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport 创建 HTTP 传输
func NewHTTPTransport(endpoint string, opts HTTPOptions) *HTTPTransport {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPTransport{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		headers: opts.Headers,
		logger:  logger.With(zap.String("transport", "http"), zap.String("endpoint", endpoint)),
	}
}

// Endpoint 返回端点地址
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

// Ready HTTP 传输总是就绪，关闭后返回 ErrBackendGone
func (t *HTTPTransport) Ready(ctx context.Context) error {
	if t.closed.Load() {
		return ErrBackendGone
	}
	return ctx.Err()
}

// Send 发送请求
func (t *HTTPTransport) Send(ctx context.Context, req jsonrpc.SerializedRequest) (jsonrpc.Response, error) {
	if t.closed.Load() {
		return jsonrpc.Response{}, ErrBackendGone
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(req.Bytes()))
	if err != nil {
		return jsonrpc.Response{}, &TransportError{Op: "create http request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return jsonrpc.Response{}, NewTransportError("http request", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.Debug("关闭响应体失败", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return jsonrpc.Response{}, NewTransportError("read response", err)
	}

	t.logger.Debug("收到响应",
		zap.String("method", req.Method()),
		zap.Stringer("id", req.ID()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)))

	decoded, err := jsonrpc.DecodeResponse(body)
	if err == nil {
		return decoded, nil
	}

	// 有的节点在失败时只返回裸错误对象
	var payload jsonrpc.ErrorPayload
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return jsonrpc.ErrorResponse(req.ID(), &payload), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return jsonrpc.Response{}, &TransportError{
			Op:          "http status",
			Err:         fmt.Errorf("%s: %s", resp.Status, truncate(body, 128)),
			Recoverable: isRetryableStatus(resp.StatusCode),
		}
	}
	return jsonrpc.Response{}, &DeserializationError{Err: err, Text: string(body)}
}

// Close 关闭传输并释放空闲连接
func (t *HTTPTransport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		t.httpClient.CloseIdleConnections()
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
