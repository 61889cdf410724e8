package server

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/iwvelando/pricing-optimizer/internal/config"
	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
)

// Config defines runtime parameters for the HTTP server.
type Config struct {
	Address        string
	CORSOrigins    []string
	RateLimit      float64
	Burst          int
	MaxRequestSize int64
	Version        string
}

// NewConfig converts the server section of the configuration, parsing the
// human-friendly request size.
func NewConfig(section config.ServerConfig, version string) (Config, error) {
	size, err := ParseSize(section.MaxRequestSize)
	if err != nil {
		return Config{}, pricing.InvalidConfigurationf("server maxRequestSize: %v", err)
	}
	cfg := Config{
		Address:        section.Address,
		CORSOrigins:    append([]string(nil), section.CORSOrigins...),
		RateLimit:      section.RateLimit,
		Burst:          section.Burst,
		MaxRequestSize: size,
		Version:        strings.TrimSpace(version),
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Address == "" {
		c.Address = constants.DefaultServerAddress
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.RateLimit <= 0 {
		c.RateLimit = constants.DefaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = constants.DefaultBurst
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = constants.DefaultMaxRequestSizeBytes
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// ParseSize converts a human-friendly byte string (e.g., "256K", "10M") into bytes.
func ParseSize(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return constants.DefaultMaxRequestSizeBytes, nil
	}

	upper := strings.ToUpper(trimmed)
	idx := len(upper)
	for idx > 0 && !unicode.IsDigit(rune(upper[idx-1])) {
		idx--
	}
	if idx == 0 {
		return 0, fmt.Errorf("invalid size: %s", value)
	}
	numPart := strings.TrimSpace(upper[:idx])
	unitPart := strings.TrimSpace(upper[idx:])

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}

	var multiplier int64
	switch unitPart {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unsupported size unit %q", unitPart)
	}

	result := n * multiplier
	if result < 0 || (n != 0 && result/n != multiplier) {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return result, nil
}
