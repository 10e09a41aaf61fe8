package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates the engine's configuration.
type Config struct {
	Server ServerConfig
	API    APIConfig
	Socket SocketConfig
	User   UserConfig
	Chat   ChatConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	api, err := loadAPIConfig()
	if err != nil {
		return nil, err
	}

	socket, err := loadSocketConfig()
	if err != nil {
		return nil, err
	}

	user, err := loadUserConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, API: api, Socket: socket, User: user, Chat: chat}, nil
}

// ServerConfig describes the local HTTP surface.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// APIConfig locates the club backend's REST API.
type APIConfig struct {
	BaseURL string
	Token   string
}

func loadAPIConfig() (APIConfig, error) {
	baseURL := getEnvOrDefault("API_BASE_URL", "http://localhost:3000/api")
	return APIConfig{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   strings.TrimSpace(os.Getenv("API_TOKEN")),
	}, nil
}

// SocketConfig locates the club backend's event stream.
type SocketConfig struct {
	URL string
}

func loadSocketConfig() (SocketConfig, error) {
	return SocketConfig{
		URL: getEnvOrDefault("SOCKET_URL", "ws://localhost:3000/socket"),
	}, nil
}

// UserConfig is the signed-in identity plus the club memberships the engine
// may open. A real deployment resolves these from the auth service; locally
// they come from the environment.
type UserConfig struct {
	ID     string
	Name   string
	Avatar string
	Rooms  []string
}

func loadUserConfig() (UserConfig, error) {
	id := strings.TrimSpace(os.Getenv("USER_ID"))
	if id == "" {
		return UserConfig{}, fmt.Errorf("USER_ID is required")
	}

	var rooms []string
	for _, room := range strings.Split(os.Getenv("USER_ROOMS"), ",") {
		if room = strings.TrimSpace(room); room != "" {
			rooms = append(rooms, room)
		}
	}

	return UserConfig{
		ID:     id,
		Name:   getEnvOrDefault("USER_NAME", id),
		Avatar: strings.TrimSpace(os.Getenv("USER_AVATAR")),
		Rooms:  rooms,
	}, nil
}

// ChatConfig tunes the real-time engine.
type ChatConfig struct {
	TypingWindow time.Duration
}

func loadChatConfig() (ChatConfig, error) {
	ms, err := parseOptionalIntEnv("TYPING_WINDOW_MS")
	if err != nil {
		return ChatConfig{}, err
	}

	cfg := ChatConfig{}
	if ms != nil {
		if *ms <= 0 {
			return ChatConfig{}, fmt.Errorf("TYPING_WINDOW_MS must be positive, got %d", *ms)
		}
		cfg.TypingWindow = time.Duration(*ms) * time.Millisecond
	}
	return cfg, nil
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
