package config

import (
	"fmt"
	"os"
	"time"

	"github.com/use-agent/fanatic/models"
	"gopkg.in/yaml.v3"
)

// Default locations and policy values.
const (
	DefaultPath          = "configs/config.yml"
	DefaultInterval      = 2 * time.Hour
	DefaultDwell         = 60 * time.Second
	DefaultLoginURL      = "https://stackoverflow.com/users/login"
	DefaultProfileMarker = "a.profile-me, a.s-user-card"
)

// Config holds all application configuration.
//
// Auth, Sites and Schedule come from the YAML file; everything else comes
// from the environment.
type Config struct {
	Auth      Credentials
	Sites     SitesConfig
	Schedule  ScheduleConfig
	Browser   BrowserConfig
	Session   SessionConfig
	Server    ServerConfig
	API       APIConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// Credentials identify the single account the visitor logs in with.
type Credentials struct {
	Email    string
	Password string
}

// SitesConfig lists subdomain labels for the two site families.
type SitesConfig struct {
	StackOverflow []string // https://{label}.stackoverflow.com
	StackExchange []string // https://{label}.stackexchange.com
}

// ScheduleConfig controls how often and how long targets are visited.
type ScheduleConfig struct {
	// Interval is the period between visit cycles.
	Interval time.Duration // default: 2h

	// Dwell is how long each target stays loaded.
	Dwell time.Duration // default: 60s
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// Stealth injects go-rod/stealth evasions into every page.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// UserAgent overrides the browser's user agent when set.
	UserAgent string

	// AcceptLanguage is sent with every request.
	AcceptLanguage string // default: "en-US,en;q=0.9"
}

// SessionConfig controls the login handshake and navigation pacing.
type SessionConfig struct {
	LoginURL string

	// ProfileMarker is a CSS selector group that only matches when logged in.
	ProfileMarker string

	// LoginTimeout bounds the wait for the post-login redirect.
	LoginTimeout time.Duration // default: 30s

	// NavigationTimeout bounds a single page open.
	NavigationTimeout time.Duration // default: 30s

	// NavigationInterval is the minimum gap between two navigations.
	NavigationInterval time.Duration // default: 2s

	// Dwell mirrors Schedule.Dwell so the visitor needs only this struct.
	Dwell time.Duration
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool   // default: false
	Host    string // default: "127.0.0.1"
	Port    int    // default: 8080
	Mode    string // "debug", "release", "test"; default: "release"
}

// APIConfig controls API key authentication of the status endpoint.
type APIConfig struct {
	APIKeys []string
}

// RateLimitConfig controls status endpoint rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 5
}

// WebhookConfig controls cycle notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Targets returns the ordered list of URLs one visit cycle walks through.
func (c *Config) Targets() []string {
	return BuildTargets(c.Sites.StackOverflow, c.Sites.StackExchange)
}

// BuildTargets applies the target URL construction rule: the main site first,
// then Stack Overflow subdomains, then Stack Exchange subdomains, each family
// in its configured order.
func BuildTargets(stackOverflow, stackExchange []string) []string {
	targets := make([]string, 0, 1+len(stackOverflow)+len(stackExchange))
	targets = append(targets, "https://stackoverflow.com")
	for _, label := range stackOverflow {
		targets = append(targets, fmt.Sprintf("https://%s.stackoverflow.com", label))
	}
	for _, label := range stackExchange {
		targets = append(targets, fmt.Sprintf("https://%s.stackexchange.com", label))
	}
	return targets
}

// Load reads the YAML file at path and layers environment settings on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewVisitError(models.ErrCodeConfig, "failed to read config file", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes and the current environment.
func Parse(data []byte) (*Config, error) {
	fc, err := parseFile(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Auth: Credentials{
			Email:    fc.Auth.Email,
			Password: fc.Auth.Password,
		},
		Sites: SitesConfig{
			StackOverflow: fc.stackOverflow,
			StackExchange: fc.stackExchange,
		},
		Schedule: ScheduleConfig{
			Interval: envDurationOr("FANATIC_INTERVAL", secondsOr(fc.Schedule.IntervalSeconds, DefaultInterval)),
			Dwell:    envDurationOr("FANATIC_DWELL", secondsOr(fc.Schedule.DwellSeconds, DefaultDwell)),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("FANATIC_HEADLESS", true),
			NoSandbox:            envBoolOr("FANATIC_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("FANATIC_BROWSER_BIN"),
			Proxy:                os.Getenv("FANATIC_PROXY"),
			Stealth:              envBoolOr("FANATIC_STEALTH", true),
			BlockedResourceTypes: envSliceOr("FANATIC_BLOCKED_RESOURCES", []string{"Image", "Font", "Media"}),
			UserAgent:            os.Getenv("FANATIC_USER_AGENT"),
			AcceptLanguage:       envOr("FANATIC_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
		},
		Session: SessionConfig{
			LoginURL:           envOr("FANATIC_LOGIN_URL", DefaultLoginURL),
			ProfileMarker:      envOr("FANATIC_PROFILE_MARKER", DefaultProfileMarker),
			LoginTimeout:       envDurationOr("FANATIC_LOGIN_TIMEOUT", 30*time.Second),
			NavigationTimeout:  envDurationOr("FANATIC_NAV_TIMEOUT", 30*time.Second),
			NavigationInterval: envDurationOr("FANATIC_NAV_INTERVAL", 2*time.Second),
		},
		Server: ServerConfig{
			Enabled: envBoolOr("FANATIC_HTTP_ENABLED", false),
			Host:    envOr("FANATIC_HOST", "127.0.0.1"),
			Port:    envIntOr("FANATIC_PORT", 8080),
			Mode:    envOr("FANATIC_MODE", "release"),
		},
		API: APIConfig{
			APIKeys: envSliceOr("FANATIC_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("FANATIC_RATE_RPS", 2.0),
			Burst:             envIntOr("FANATIC_RATE_BURST", 5),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("FANATIC_WEBHOOK_URL"),
			Secret: os.Getenv("FANATIC_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("FANATIC_LOG_LEVEL", "info"),
			Format: envOr("FANATIC_LOG_FORMAT", "json"),
		},
	}
	cfg.Session.Dwell = cfg.Schedule.Dwell

	if cfg.Schedule.Interval <= 0 {
		return nil, models.NewVisitError(models.ErrCodeConfig, "schedule interval must be positive", nil)
	}
	if cfg.Schedule.Dwell < 0 {
		return nil, models.NewVisitError(models.ErrCodeConfig, "dwell time must not be negative", nil)
	}
	return cfg, nil
}

// fileConfig mirrors the YAML document. Sites is kept as a raw node so the
// shape of each entry can be checked before decoding.
type fileConfig struct {
	Auth *struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
	Sites    yaml.Node `yaml:"sites"`
	Schedule struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		DwellSeconds    int `yaml:"dwell_seconds"`
	} `yaml:"schedule"`

	stackOverflow []string
	stackExchange []string
}

func parseFile(data []byte) (*fileConfig, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, models.NewVisitError(models.ErrCodeConfig, "failed to parse config file", err)
	}

	if err := fc.decodeSites(); err != nil {
		return nil, err
	}

	switch {
	case fc.Auth == nil:
		return nil, configError(`"auth" section of the config file must exist.`)
	case fc.Auth.Email == "":
		return nil, configError(`"auth.email" field must be set.`)
	case fc.Auth.Password == "":
		return nil, configError(`"auth.password" field must be set.`)
	}

	if fc.Schedule.IntervalSeconds < 0 {
		return nil, configError(`"schedule.interval_seconds" must be positive.`)
	}
	if fc.Schedule.DwellSeconds < 0 {
		return nil, configError(`"schedule.dwell_seconds" must not be negative.`)
	}
	return &fc, nil
}

// decodeSites validates the sites section: absent or null is fine, otherwise
// it must be a mapping whose family entries are null or string sequences.
func (fc *fileConfig) decodeSites() error {
	if fc.Sites.Kind == 0 || isNull(&fc.Sites) {
		return nil
	}
	if fc.Sites.Kind != yaml.MappingNode {
		return configError(`"sites" section of the config file must be an object.`)
	}

	for i := 0; i+1 < len(fc.Sites.Content); i += 2 {
		key, value := fc.Sites.Content[i].Value, fc.Sites.Content[i+1]

		var dst *[]string
		switch key {
		case "stackoverflow":
			dst = &fc.stackOverflow
		case "stackexchange":
			dst = &fc.stackExchange
		default:
			continue
		}

		if isNull(value) {
			continue
		}
		if value.Kind != yaml.SequenceNode {
			return configError(fmt.Sprintf(`"sites.%s" value of the config file can be either null or an array.`, key))
		}
		if err := value.Decode(dst); err != nil {
			return models.NewVisitError(models.ErrCodeConfig, fmt.Sprintf(`"sites.%s" must only contain strings`, key), err)
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func configError(msg string) *models.VisitError {
	return models.NewVisitError(models.ErrCodeConfig, msg, nil)
}
