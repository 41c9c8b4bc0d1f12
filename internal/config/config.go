package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey 表示未找到 Gemini API Key，服务无法启动。
var ErrMissingAPIKey = errors.New("GOOGLE_API_KEY is not configured: set the environment variable or add it to the secrets file")

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Research ResearchConfig
	Session  SessionConfig
	Upload   UploadConfig
	Log      LogConfig
}

// Load 从环境变量（以及可选的 secrets 文件）加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	secrets, err := loadSecrets(getEnvOrDefault("SECRETS_FILE", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(secrets)
	if err != nil {
		return nil, err
	}

	research, err := loadResearchConfig(ai)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	upload, err := loadUploadConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Research: research,
		Session:  session,
		Upload:   upload,
		Log:      logCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
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

// AIConfig 描述 Gemini 聊天模型相关配置。
type AIConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	CandidateCount int32
	RequestTimeout time.Duration
}

// ResearchConfig 描述检索增强流水线（简化 -> 搜索）的配置。
type ResearchConfig struct {
	Model          string
	SearchModel    string
	DefaultEnabled bool
	Timeout        time.Duration
	MaxIterations  int
	FetchTimeout   time.Duration
	FetchMaxChars  int
}

// SessionConfig 控制内存中会话状态的容量与存活时间。
type SessionConfig struct {
	MaxSessions int
	TTL         time.Duration
}

// UploadConfig 限制图片上传大小。
type UploadConfig struct {
	MaxBytes int64
}

// LogConfig 控制 zap 日志输出。
type LogConfig struct {
	Level       string
	Development bool
}

func loadAIConfig(secrets map[string]string) (AIConfig, error) {
	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(secrets["GOOGLE_API_KEY"])
	}
	if apiKey == "" {
		return AIConfig{}, ErrMissingAPIKey
	}

	temperature := float32(0.7)
	if override, err := parseOptionalFloat32Env("GEMINI_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	timeout, err := parseDurationEnv("AI_REQUEST_TIMEOUT", 90*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         apiKey,
		Model:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		Temperature:    temperature,
		CandidateCount: 1,
		RequestTimeout: timeout,
	}, nil
}

func loadResearchConfig(ai AIConfig) (ResearchConfig, error) {
	enabled, err := parseBoolEnv("RESEARCH_DEFAULT_ENABLED", false)
	if err != nil {
		return ResearchConfig{}, err
	}

	timeout, err := parseDurationEnv("RESEARCH_TIMEOUT", 60*time.Second)
	if err != nil {
		return ResearchConfig{}, err
	}

	fetchTimeout, err := parseDurationEnv("RESEARCH_FETCH_TIMEOUT", 15*time.Second)
	if err != nil {
		return ResearchConfig{}, err
	}

	maxIterations := 8
	if override, err := parseOptionalIntEnv("RESEARCH_MAX_ITERATIONS"); err != nil {
		return ResearchConfig{}, err
	} else if override != nil && *override > 0 {
		maxIterations = *override
	}

	maxChars := 6000
	if override, err := parseOptionalIntEnv("RESEARCH_FETCH_MAX_CHARS"); err != nil {
		return ResearchConfig{}, err
	} else if override != nil && *override > 0 {
		maxChars = *override
	}

	model := getEnvOrDefault("RESEARCH_MODEL", ai.Model)
	return ResearchConfig{
		Model:          model,
		SearchModel:    getEnvOrDefault("RESEARCH_SEARCH_MODEL", model),
		DefaultEnabled: enabled,
		Timeout:        timeout,
		MaxIterations:  maxIterations,
		FetchTimeout:   fetchTimeout,
		FetchMaxChars:  maxChars,
	}, nil
}

func loadSessionConfig() (SessionConfig, error) {
	maxSessions := 1024
	if override, err := parseOptionalIntEnv("SESSION_MAX"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			maxSessions = 1
		} else {
			maxSessions = *override
		}
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{MaxSessions: maxSessions, TTL: ttl}, nil
}

func loadUploadConfig() (UploadConfig, error) {
	maxBytes := int64(10 << 20)
	if override, err := parseOptionalIntEnv("UPLOAD_MAX_BYTES"); err != nil {
		return UploadConfig{}, err
	} else if override != nil && *override > 0 {
		maxBytes = int64(*override)
	}
	return UploadConfig{MaxBytes: maxBytes}, nil
}

func loadLogConfig() (LogConfig, error) {
	development, err := parseBoolEnv("LOG_DEVELOPMENT", false)
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Development: development,
	}, nil
}

// loadSecrets 读取 YAML 格式的 secrets 文件；文件不存在时返回空集合。
// 只保留字符串值，其他类型的条目会被忽略。
func loadSecrets(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read secrets file %s: %w", path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse secrets file %s: %w", path, err)
	}

	secrets := make(map[string]string, len(raw))
	for key, value := range raw {
		if str, ok := value.(string); ok {
			secrets[key] = str
		}
	}
	return secrets, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
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

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
