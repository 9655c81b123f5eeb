package claimforge

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/claimforge/claimforge/claimforge/automation"
	"github.com/claimforge/claimforge/claimforge/database"
	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig         `toml:"log"`
	Bot    BotConfig         `toml:"bot"`
	DB     database.DBConfig `toml:"db"`
	Claim  ClaimConfig       `toml:"claim"`
	Spaces SpacesConfig      `toml:"spaces"`
	Mongo  MongoConfig       `toml:"mongo"`
}

type BotConfig struct {
	DevGuilds       []snowflake.ID `toml:"dev_guilds"`
	Token           string         `toml:"token"`
	NotifyChannelID snowflake.ID   `toml:"notify_channel_id"`
	AdminIDs        []snowflake.ID `toml:"admin_ids"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type ClaimConfig struct {
	MaxConcurrent         int                        `toml:"max_concurrent"`
	Serial                bool                       `toml:"serial"`
	InterAccountDelaySecs int                        `toml:"inter_account_delay_secs"`
	NavigationTimeoutSecs int                        `toml:"navigation_timeout_secs"`
	SettleDelaySecs       int                        `toml:"settle_delay_secs"`
	CycleIntervalMins     int                        `toml:"cycle_interval_mins"`
	MaintenanceHours      int                        `toml:"maintenance_hours"`
	Timezone              string                     `toml:"timezone"`
	Headless              bool                       `toml:"headless"`
	UserAgent             string                     `toml:"user_agent"`
	SnapshotDir           string                     `toml:"snapshot_dir"`
	LoginSelector         string                     `toml:"login_selector"`
	LoginInputSelector    string                     `toml:"login_input_selector"`
	LoginSubmitSelector   string                     `toml:"login_submit_selector"`
	LoginErrorSelector    string                     `toml:"login_error_selector"`
	Sections              []automation.SectionConfig `toml:"sections"`
}

type SpacesConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
	Root   string `toml:"root"`
}

type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// SessionConfig translates the TOML claim block into the automation layer's
// config, applying the defaults the site's timings call for.
func (c ClaimConfig) SessionConfig() automation.SessionConfig {
	navTimeout := 30 * time.Second
	if c.NavigationTimeoutSecs > 0 {
		navTimeout = time.Duration(c.NavigationTimeoutSecs) * time.Second
	}
	settle := 2 * time.Second
	if c.SettleDelaySecs > 0 {
		settle = time.Duration(c.SettleDelaySecs) * time.Second
	}
	snapshotDir := c.SnapshotDir
	if snapshotDir == "" {
		snapshotDir = "snapshots"
	}
	return automation.SessionConfig{
		Sections:            c.Sections,
		LoginSelector:       c.LoginSelector,
		LoginInputSelector:  c.LoginInputSelector,
		LoginSubmitSelector: c.LoginSubmitSelector,
		LoginErrorSelector:  c.LoginErrorSelector,
		NavigationTimeout:   navTimeout,
		SettleDelay:         settle,
		SnapshotDir:         snapshotDir,
	}
}

// Location resolves the configured timezone for calendar-day dedup.
func (c ClaimConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("Invalid timezone in config, falling back to UTC",
			slog.String("timezone", c.Timezone),
			slog.Any("error", err))
		return time.UTC
	}
	return loc
}
