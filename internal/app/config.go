package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/azureblob"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/nettransport"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/platform"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/usecase"
)

// Duration reads Go duration strings ("90s", "8h") from TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	Addr                  string   `toml:"addr"`
	SecretsFile           string   `toml:"secrets-file"`
	SessionDB             string   `toml:"session-db"`
	SessionTTL            Duration `toml:"session-ttl"`
	JanitorInterval       Duration `toml:"janitor-interval"`
	IdentityURL           string   `toml:"identity-url"`
	PlatformURL           string   `toml:"platform-url"`
	IMSScope              string   `toml:"ims-scope"`
	StorageEndpoint       string   `toml:"storage-endpoint"`
	ProxyURL              string   `toml:"proxy-url"`
	TokenLifetime         Duration `toml:"token-lifetime"`
	RateLimit             int      `toml:"rate-limit"`
	HTTPTimeout           Duration `toml:"http-timeout"`
	CORSOrigins           []string `toml:"cors-origins"`
	LogLevel              string   `toml:"log-level"`
	RefreshOnUnauthorized bool     `toml:"refresh-on-unauthorized"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		SecretsFile:     "./secrets.json",
		SessionDB:       "",
		SessionTTL:      Duration(usecase.DefaultSessionTTL),
		JanitorInterval: Duration(time.Minute),
		IdentityURL:     platform.DefaultIdentityURL,
		PlatformURL:     platform.DefaultPlatformURL,
		IMSScope:        platform.DefaultScope,
		StorageEndpoint: azureblob.DefaultEndpoint,
		TokenLifetime:   Duration(domain.DefaultTokenLifetime),
		RateLimit:       platform.DefaultRateLimit,
		HTTPTimeout:     Duration(nettransport.DefaultTimeout),
		LogLevel:        "info",
	}
}

// LoadConfigFile overlays the TOML file at path onto cfg. Keys absent from
// the file keep their current values.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read config file %s: %v", domain.ErrConfiguration, path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse config file %s: %v", domain.ErrConfiguration, path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr is empty")
	}
	if strings.TrimSpace(c.SecretsFile) == "" {
		problems = append(problems, "secrets-file is empty")
	}
	if c.SessionTTL < 0 {
		problems = append(problems, "session-ttl is negative")
	}
	if c.TokenLifetime < 0 {
		problems = append(problems, "token-lifetime is negative")
	}
	if c.HTTPTimeout < 0 {
		problems = append(problems, "http-timeout is negative")
	}
	if !strings.Contains(c.StorageEndpoint, "{account}") && c.StorageEndpoint != "" {
		problems = append(problems, "storage-endpoint must contain {account}")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
