package config

import "time"

const (
	defaultEndpoint = "http://127.0.0.1:8545"

	defaultRequestTimeout     = 30 * time.Second
	defaultWSHandshakeTimeout = 10 * time.Second
	defaultWSPingInterval     = 30 * time.Second
	defaultReconnectAttempts  = 3
	defaultReconnectBackoff   = time.Second

	defaultPollChannelSize = 16
	defaultPollMaxRetries  = 3

	defaultSubscriptionBuffer   = 16
	defaultHeartbeatChannelSize = 16

	defaultConfirmations = 1
)
