package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/fanatic/models"
)

const validYAML = `
auth:
  email: user@example.com
  password: hunter2
sites:
  stackoverflow:
    - meta
    - gaming
  stackexchange: ~
`

func TestBuildTargets(t *testing.T) {
	tests := []struct {
		name string
		so   []string
		se   []string
		want []string
	}{
		{
			name: "no subdomains",
			want: []string{"https://stackoverflow.com"},
		},
		{
			name: "stackoverflow only",
			so:   []string{"meta", "gaming"},
			want: []string{
				"https://stackoverflow.com",
				"https://meta.stackoverflow.com",
				"https://gaming.stackoverflow.com",
			},
		},
		{
			name: "both families keep order",
			so:   []string{"meta"},
			se:   []string{"unix", "askubuntu", "math"},
			want: []string{
				"https://stackoverflow.com",
				"https://meta.stackoverflow.com",
				"https://unix.stackexchange.com",
				"https://askubuntu.stackexchange.com",
				"https://math.stackexchange.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildTargets(tt.so, tt.se)
			if !slices.Equal(got, tt.want) {
				t.Errorf("BuildTargets() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Auth.Email != "user@example.com" || cfg.Auth.Password != "hunter2" {
		t.Errorf("unexpected credentials: %+v", cfg.Auth)
	}
	want := []string{
		"https://stackoverflow.com",
		"https://meta.stackoverflow.com",
		"https://gaming.stackoverflow.com",
	}
	if got := cfg.Targets(); !slices.Equal(got, want) {
		t.Errorf("Targets() = %v, want %v", got, want)
	}
	if len(cfg.Sites.StackExchange) != 0 {
		t.Errorf("null stackexchange should default to empty, got %v", cfg.Sites.StackExchange)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("auth:\n  email: a@b.c\n  password: p\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Schedule.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", cfg.Schedule.Interval, DefaultInterval)
	}
	if cfg.Schedule.Dwell != DefaultDwell {
		t.Errorf("Dwell = %v, want %v", cfg.Schedule.Dwell, DefaultDwell)
	}
	if cfg.Session.Dwell != cfg.Schedule.Dwell {
		t.Errorf("Session.Dwell = %v, want it to mirror Schedule.Dwell", cfg.Session.Dwell)
	}
	if cfg.Session.LoginURL != DefaultLoginURL {
		t.Errorf("LoginURL = %q", cfg.Session.LoginURL)
	}
	if cfg.Session.ProfileMarker != DefaultProfileMarker {
		t.Errorf("ProfileMarker = %q", cfg.Session.ProfileMarker)
	}
	if !cfg.Browser.Headless || !cfg.Browser.Stealth {
		t.Errorf("browser should default to headless stealth, got %+v", cfg.Browser)
	}
	if got := cfg.Targets(); len(got) != 1 {
		t.Errorf("missing sites section should yield only the main site, got %v", got)
	}
}

func TestParse_Schedule(t *testing.T) {
	doc := validYAML + "schedule:\n  interval_seconds: 86400\n  dwell_seconds: 5\n"
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Schedule.Interval != 24*time.Hour {
		t.Errorf("Interval = %v, want 24h", cfg.Schedule.Interval)
	}
	if cfg.Schedule.Dwell != 5*time.Second {
		t.Errorf("Dwell = %v, want 5s", cfg.Schedule.Dwell)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("FANATIC_INTERVAL", "3h")
	t.Setenv("FANATIC_DWELL", "15")
	t.Setenv("FANATIC_HEADLESS", "false")
	t.Setenv("FANATIC_BLOCKED_RESOURCES", "Image, Stylesheet ,")
	t.Setenv("FANATIC_API_KEYS", "k1,k2")

	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Schedule.Interval != 3*time.Hour {
		t.Errorf("Interval = %v, want 3h", cfg.Schedule.Interval)
	}
	if cfg.Schedule.Dwell != 15*time.Second {
		t.Errorf("Dwell = %v, want 15s", cfg.Schedule.Dwell)
	}
	if cfg.Browser.Headless {
		t.Error("FANATIC_HEADLESS=false should disable headless mode")
	}
	if want := []string{"Image", "Stylesheet"}; !slices.Equal(cfg.Browser.BlockedResourceTypes, want) {
		t.Errorf("BlockedResourceTypes = %v, want %v", cfg.Browser.BlockedResourceTypes, want)
	}
	if want := []string{"k1", "k2"}; !slices.Equal(cfg.API.APIKeys, want) {
		t.Errorf("APIKeys = %v, want %v", cfg.API.APIKeys, want)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{"empty document", "", `"auth" section of the config file must exist.`},
		{"missing auth", "sites: {}\n", `"auth" section of the config file must exist.`},
		{"missing email", "auth:\n  password: p\n", `"auth.email" field must be set.`},
		{"missing password", "auth:\n  email: a@b.c\n", `"auth.password" field must be set.`},
		{
			"sites not an object",
			"auth:\n  email: a\n  password: p\nsites: [meta]\n",
			`"sites" section of the config file must be an object.`,
		},
		{
			"stackoverflow not a list",
			"auth:\n  email: a\n  password: p\nsites:\n  stackoverflow: meta\n",
			`"sites.stackoverflow" value of the config file can be either null or an array.`,
		},
		{
			"stackexchange not a list",
			"auth:\n  email: a\n  password: p\nsites:\n  stackexchange: {a: b}\n",
			`"sites.stackexchange" value of the config file can be either null or an array.`,
		},
		{
			"negative interval",
			"auth:\n  email: a\n  password: p\nschedule:\n  interval_seconds: -1\n",
			`"schedule.interval_seconds" must be positive.`,
		},
		{"malformed yaml", "auth: [\n", "failed to parse config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !models.IsCode(err, models.ErrCodeConfig) {
				t.Errorf("expected %s, got %v", models.ErrCodeConfig, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.Email != "user@example.com" {
		t.Errorf("Email = %q", cfg.Auth.Email)
	}

	_, err = Load(filepath.Join(dir, "missing.yml"))
	if !models.IsCode(err, models.ErrCodeConfig) {
		t.Errorf("missing file should be a config error, got %v", err)
	}
}
