// Package config loads and validates the streaming core's host
// configuration: listen addresses, fragmentation and flow-control
// tunables, cipher material and logging options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/deskstream/streamcore/internal/logging"
)

var log = logging.L("config")

type Config struct {
	// Transport listeners
	ListenUDPAddr string `mapstructure:"listen_udp_addr"`
	ListenTCPAddr string `mapstructure:"listen_tcp_addr"`

	// Fragmentation / adaptive flow control (spec.md §4.2, §9)
	MaxFragmentSizeCeiling        int `mapstructure:"max_fragment_size_ceiling"`
	MaxFragmentSizeFloor          int `mapstructure:"max_fragment_size_floor"`
	DatagramMsgIntervalSeconds    int `mapstructure:"datagram_msg_interval_seconds"`
	DatagramLostMsgThreshold      int `mapstructure:"datagram_lost_msg_threshold"`
	DatagramTurningPointThreshold int `mapstructure:"datagram_turning_point_threshold"`

	// Session lifecycle
	DisconnectTimeoutSeconds int `mapstructure:"disconnect_timeout_seconds"`

	// Cipher (spec.md §4.9)
	CipherPassphrase string `mapstructure:"cipher_passphrase"`
	CipherSalt       string `mapstructure:"cipher_salt"`

	// Discovery / advertisement
	DiscoveryDeviceID  string `mapstructure:"discovery_device_id"`
	ServerDisplayName  string `mapstructure:"server_display_name"`
	PreferredCodec     string `mapstructure:"preferred_codec"`
	PreferredQuality   string `mapstructure:"preferred_quality"`

	// Logging configuration
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// Concurrency limits
	MaxSessions      int `mapstructure:"max_sessions"`
	SessionQueueSize int `mapstructure:"session_queue_size"`
}

func Default() *Config {
	return &Config{
		ListenUDPAddr: ":7800",
		ListenTCPAddr: ":7801",

		MaxFragmentSizeCeiling:        65507,
		MaxFragmentSizeFloor:          1024,
		DatagramMsgIntervalSeconds:    10,
		DatagramLostMsgThreshold:      10,
		DatagramTurningPointThreshold: 20,

		DisconnectTimeoutSeconds: 30,

		DiscoveryDeviceID: "",
		PreferredCodec:    "h264",
		PreferredQuality:  "auto",

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,

		MaxSessions:      64,
		SessionQueueSize: 256,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("streamd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STREAMCORE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.DiscoveryDeviceID == "" {
		cfg.DiscoveryDeviceID = generateDeviceID()
	}

	// Validate config: fatals block startup, warnings are logged and continue.
	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("listen_udp_addr", cfg.ListenUDPAddr)
	viper.Set("listen_tcp_addr", cfg.ListenTCPAddr)
	viper.Set("max_fragment_size_ceiling", cfg.MaxFragmentSizeCeiling)
	viper.Set("max_fragment_size_floor", cfg.MaxFragmentSizeFloor)
	viper.Set("datagram_msg_interval_seconds", cfg.DatagramMsgIntervalSeconds)
	viper.Set("datagram_lost_msg_threshold", cfg.DatagramLostMsgThreshold)
	viper.Set("datagram_turning_point_threshold", cfg.DatagramTurningPointThreshold)
	viper.Set("disconnect_timeout_seconds", cfg.DisconnectTimeoutSeconds)
	viper.Set("cipher_passphrase", cfg.CipherPassphrase)
	viper.Set("cipher_salt", cfg.CipherSalt)
	viper.Set("discovery_device_id", cfg.DiscoveryDeviceID)
	viper.Set("server_display_name", cfg.ServerDisplayName)
	viper.Set("preferred_codec", cfg.PreferredCodec)
	viper.Set("preferred_quality", cfg.PreferredQuality)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "streamd.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Restrict config file to owner-only access (contains cipher passphrase)
	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "StreamCore")
	case "darwin":
		return "/Library/Application Support/StreamCore"
	default:
		return "/etc/streamcore"
	}
}
