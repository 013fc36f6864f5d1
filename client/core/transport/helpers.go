package transport

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// IsLocalEndpoint 判断端点是否指向本机
//
// 本机节点出块快、无网络延迟，客户端据此选择更短的默认轮询间隔。
func IsLocalEndpoint(endpoint string) bool {
	var host string
	if u, err := url.Parse(endpoint); err == nil {
		host = u.Hostname()
	}
	if host == "" {
		// 没有 scheme 的 "127.0.0.1:8545" 形式
		if h, _, err := net.SplitHostPort(endpoint); err == nil {
			host = h
		} else {
			host = endpoint
		}
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isRetryableStatus 限流或网关暂时不可用
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
