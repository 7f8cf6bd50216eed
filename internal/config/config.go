package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Relay    RelayConfig    `yaml:"relay"`
	Presence PresenceConfig `yaml:"presence"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:","`
}

// RelayConfig holds room limits and per-event quotas.
type RelayConfig struct {
	MaxRoomMembers int            `yaml:"max_room_members" env:"MAX_ROOM_MEMBERS" env-default:"50"`
	MaxSourceBytes int            `yaml:"max_source_bytes" env:"MAX_SOURCE_BYTES" env-default:"512000"`
	MaxFileBytes   int64          `yaml:"max_file_bytes" env:"MAX_FILE_BYTES" env-default:"4194304"`
	// MaxFrameBytes is the transport ceiling; 0 derives it from the caps above.
	MaxFrameBytes  int64          `yaml:"max_frame_bytes" env:"MAX_FRAME_BYTES"`
	ChatHistory    int            `yaml:"chat_history" env:"CHAT_HISTORY" env-default:"100"`
	ChatReplay     int            `yaml:"chat_replay" env:"CHAT_REPLAY" env-default:"50"`
	MaxChatLength  int            `yaml:"max_chat_length" env:"MAX_CHAT_LENGTH" env-default:"500"`
	MaxNameLength  int            `yaml:"max_name_length" env:"MAX_NAME_LENGTH" env-default:"20"`
	RoomGrace      time.Duration  `yaml:"room_grace" env:"ROOM_GRACE" env-default:"5m"`
	SendBuffer     int            `yaml:"send_buffer" env:"SEND_BUFFER" env-default:"64"`
	RateWindow     time.Duration  `yaml:"rate_window" env:"RATE_WINDOW" env-default:"1s"`
	RateLimits     map[string]int `yaml:"rate_limits" env:"RATE_LIMITS" env-separator:","`
}

type PresenceConfig struct {
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	TTL           time.Duration `yaml:"ttl" env:"PRESENCE_TTL" env-default:"24h"`
	QueueSize     int           `yaml:"queue_size" env:"PRESENCE_QUEUE" env-default:"256"`
}

type WebRTCConfig struct {
	STUNServers     []string      `yaml:"stun_servers" env:"STUN_SERVERS" env-separator:","`
	TURNServers     []string      `yaml:"turn_servers" env:"TURN_SERVERS" env-separator:","`
	TURNUsername    string        `yaml:"turn_username" env:"TURN_USERNAME"`
	TURNPassword    string        `yaml:"turn_password" env:"TURN_PASSWORD"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT" env-default:"30s"`
	DisconnectGrace time.Duration `yaml:"disconnect_grace" env:"DISCONNECT_GRACE" env-default:"5s"`
	MaxMeshPeers    int           `yaml:"max_mesh_peers" env:"MAX_MESH_PEERS" env-default:"6"`
}

// DefaultRateLimits are the per-second quotas applied when none are configured.
var DefaultRateLimits = map[string]int{
	"cursor-move":      60,
	"selection-change": 30,
	"code-change":      30,
	"chat-message":     5,
	"emoji-reaction":   10,
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic("cannot read config: " + err.Error())
	}
	return cfg
}

// Load reads configPath when it exists and falls back to the environment otherwise.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(configPath); configPath == "" || errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	} else {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", configPath, err)
		}
	}

	cfg.setDefaults()

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	c.HTTP.AllowedOrigins = trimAll(c.HTTP.AllowedOrigins)

	r := &c.Relay
	if r.MaxRoomMembers <= 0 {
		r.MaxRoomMembers = 50
	}
	if r.MaxSourceBytes <= 0 {
		r.MaxSourceBytes = 500 * 1024
	}
	if r.MaxFileBytes <= 0 {
		r.MaxFileBytes = 4 * 1024 * 1024
	}
	if r.MaxFrameBytes < 0 {
		r.MaxFrameBytes = 0
	}
	if r.ChatHistory <= 0 {
		r.ChatHistory = 100
	}
	if r.ChatReplay <= 0 || r.ChatReplay > r.ChatHistory {
		r.ChatReplay = min(50, r.ChatHistory)
	}
	if r.MaxChatLength <= 0 {
		r.MaxChatLength = 500
	}
	if r.MaxNameLength <= 0 {
		r.MaxNameLength = 20
	}
	if r.RoomGrace <= 0 {
		r.RoomGrace = 5 * time.Minute
	}
	if r.SendBuffer <= 0 {
		r.SendBuffer = 64
	}
	if r.RateWindow <= 0 {
		r.RateWindow = time.Second
	}
	if len(r.RateLimits) == 0 {
		r.RateLimits = make(map[string]int, len(DefaultRateLimits))
		for kind, limit := range DefaultRateLimits {
			r.RateLimits[kind] = limit
		}
	}

	if c.Presence.TTL <= 0 {
		c.Presence.TTL = 24 * time.Hour
	}
	if c.Presence.QueueSize <= 0 {
		c.Presence.QueueSize = 256
	}

	w := &c.WebRTC
	w.STUNServers = trimAll(w.STUNServers)
	w.TURNServers = trimAll(w.TURNServers)
	if len(w.STUNServers) == 0 {
		w.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if w.ConnectTimeout <= 0 {
		w.ConnectTimeout = 30 * time.Second
	}
	if w.DisconnectGrace <= 0 {
		w.DisconnectGrace = 5 * time.Second
	}
	if w.MaxMeshPeers <= 0 {
		w.MaxMeshPeers = 6
	}
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
