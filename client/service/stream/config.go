package stream

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds the per-stream encoding configuration. Values come from an
// optional YAML file with LUMEN_* environment overrides on top.
type Settings struct {
	Codec   string `yaml:"codec"`   // h264 or hevc
	Bitrate int64  `yaml:"bitrate"` // bits per second
	FPS     int    `yaml:"fps"`
	TenBit  bool   `yaml:"tenBit"`
	Channel string `yaml:"channel"` // bridge transport name
}

// DefaultSettings mirrors the encoder process defaults.
func DefaultSettings() Settings {
	return Settings{
		Codec:   "h264",
		Bitrate: 30_000_000,
		FPS:     72,
	}
}

// LoadSettings reads the YAML file when path is non-empty, then applies
// environment overrides. A missing file is not an error; defaults apply.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return settings, fmt.Errorf("stream: read settings: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, &settings); err != nil {
			return settings, fmt.Errorf("stream: parse settings: %w", err)
		}
	}
	applyEnv(&settings)
	if settings.FPS <= 0 {
		settings.FPS = DefaultSettings().FPS
	}
	if settings.Bitrate <= 0 {
		settings.Bitrate = DefaultSettings().Bitrate
	}
	if settings.Codec == "" {
		settings.Codec = DefaultSettings().Codec
	}
	return settings, nil
}

func applyEnv(s *Settings) {
	if v := strings.TrimSpace(os.Getenv("LUMEN_CODEC")); v != "" {
		s.Codec = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("LUMEN_BITRATE")); v != "" {
		if bitrate, err := strconv.ParseInt(v, 10, 64); err == nil && bitrate > 0 {
			s.Bitrate = bitrate
		}
	}
	if v := strings.TrimSpace(os.Getenv("LUMEN_FPS")); v != "" {
		if fps, err := strconv.Atoi(v); err == nil && fps > 0 {
			s.FPS = fps
		}
	}
	if v := strings.TrimSpace(os.Getenv("LUMEN_10BIT")); v != "" {
		s.TenBit = v == "1" || strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(os.Getenv("LUMEN_CHANNEL")); v != "" {
		s.Channel = v
	}
}
