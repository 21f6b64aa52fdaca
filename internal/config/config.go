package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Upstream: upstream}, nil
}

// ServerConfig 描述本地 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// UpstreamConfig 描述远端推理服务的连接配置。
type UpstreamConfig struct {
	// URL is the streaming chat endpoint.
	URL string
	// Token is the opaque bearer credential supplied by the auth layer;
	// empty means the endpoint is unauthenticated.
	Token string
	// HeaderTimeout bounds the wait for response headers only. The stream
	// body carries no protocol timeout.
	HeaderTimeout time.Duration
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	timeoutSeconds, err := parseOptionalIntEnv("ZCHAT_UPSTREAM_TIMEOUT")
	if err != nil {
		return UpstreamConfig{}, err
	}
	headerTimeout := 30 * time.Second
	if timeoutSeconds != nil {
		headerTimeout = time.Duration(*timeoutSeconds) * time.Second
	}

	return UpstreamConfig{
		URL:           getEnvOrDefault("ZCHAT_UPSTREAM_URL", "http://localhost:3000/api/chat"),
		Token:         strings.TrimSpace(os.Getenv("ZCHAT_UPSTREAM_TOKEN")),
		HeaderTimeout: headerTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
