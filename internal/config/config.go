package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/labels"
)

const (
	defaultTimezone = "Europe/Warsaw"
	configPathEnv   = "HIGHLIGHTS_CONFIG"

	scannerAPI  = "api"
	scannerHTML = "html"
)

// Config holds high-level settings required across the application.
// It is built once by Load and treated as read-only afterwards.
type Config struct {
	Logging        LoggingConfig        `yaml:"logging"`
	Reddit         RedditConfig         `yaml:"reddit"`
	Source         SourceConfig         `yaml:"source"`
	Target         TargetConfig         `yaml:"target"`
	Classification ClassificationConfig `yaml:"classification"`
	Digest         DigestConfig         `yaml:"digest"`
	Campaign       CampaignConfig       `yaml:"campaign"`
	Sticky         StickyConfig         `yaml:"sticky"`
	Database       DatabaseConfig       `yaml:"database"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	Status         StatusConfig         `yaml:"status"`
	Notifications  NotificationConfig   `yaml:"notifications"`
}

// LoggingConfig selects slog level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RedditConfig carries script-app OAuth credentials.
type RedditConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	UserAgent    string `yaml:"userAgent"`
	APIBaseURL   string `yaml:"apiBaseUrl"`
	TokenURL     string `yaml:"tokenUrl"`
}

// SourceConfig describes where candidates are read from.
type SourceConfig struct {
	Subreddit  string `yaml:"subreddit"`
	ScanLimit  int    `yaml:"scanLimit"`
	WindowDays int    `yaml:"windowDays"`
	// Scanner is the listing strategy: "api" or "html".
	Scanner     string `yaml:"scanner"`
	HTMLBaseURL string `yaml:"htmlBaseUrl"`
}

// TargetConfig describes where the digest is published.
type TargetConfig struct {
	Subreddit string `yaml:"subreddit"`
	Flair     string `yaml:"flair"`
	// PostID switches publishing to a reply under an existing post.
	PostID string `yaml:"postId"`
	DryRun bool   `yaml:"dryRun"`
}

// ClassificationConfig is the taxonomy. Categories are listed in scan order.
type ClassificationConfig struct {
	MinScore     int              `yaml:"minScore"`
	Categories   []CategoryConfig `yaml:"categories"`
	DisplayOrder []string         `yaml:"displayOrder"`
}

// CategoryConfig is one taxonomy entry; a nil Limit means unbounded.
type CategoryConfig struct {
	Key    string   `yaml:"key"`
	Label  string   `yaml:"label"`
	Icon   string   `yaml:"icon"`
	Flairs []string `yaml:"flairs"`
	Limit  *int     `yaml:"limit"`
}

// DigestConfig holds the static text of the post.
type DigestConfig struct {
	Title          string `yaml:"title"`
	Marker         string `yaml:"marker"`
	WikiURL        string `yaml:"wikiUrl"`
	Footer         string `yaml:"footer"`
	ShowThumbnails bool   `yaml:"showThumbnails"`
}

// CampaignConfig is an optional dated announcement. Dates use YYYY-MM-DD.
type CampaignConfig struct {
	Name  string    `yaml:"name"`
	Body  string    `yaml:"body"`
	Start string    `yaml:"start"`
	End   string    `yaml:"end"`
	start time.Time `yaml:"-"`
	end   time.Time `yaml:"-"`
}

// Window returns the parsed campaign dates; zero values mean no campaign.
func (c CampaignConfig) Window() (time.Time, time.Time) {
	return c.start, c.end
}

// StickyConfig controls slot reconciliation after publishing.
type StickyConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Position      string `yaml:"position"`
	SuggestedSort string `yaml:"suggestedSort"`
}

// Slot resolves the configured position.
func (s StickyConfig) Slot() domain.Slot {
	slot, err := domain.ParseSlot(s.Position)
	if err != nil {
		return domain.SlotBottom
	}
	return slot
}

// DatabaseConfig describes run-history storage. Empty DSN disables it.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StatusConfig configures the HTTP status endpoint of the scheduler.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads YAML configuration (if present), applies environment overrides and validates.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnvOverrides(os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.bindTimezone()
	cfg.bindCampaign()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile decodes the YAML file over the current values. A file that redefines
// the categories without a display order falls back to scan order.
func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	var probe struct {
		Classification struct {
			Categories   []CategoryConfig `yaml:"categories"`
			DisplayOrder []string         `yaml:"displayOrder"`
		} `yaml:"classification"`
	}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(probe.Classification.Categories) > 0 && len(probe.Classification.DisplayOrder) == 0 {
		c.Classification.DisplayOrder = nil
	}
	return nil
}

func (c *Config) applyEnvOverrides(getenv func(string) string) error {
	var errs []error

	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := strings.TrimSpace(getenv(key)); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, key string) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
			return
		}
		*dst = n
	}
	setBool := func(dst *bool, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = strings.EqualFold(v, "true")
		}
	}

	setString(&c.Reddit.ClientID, "REDDIT_CLIENT_ID")
	setString(&c.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	setString(&c.Reddit.Username, "REDDIT_USERNAME")
	setString(&c.Reddit.Password, "REDDIT_PASSWORD")
	setString(&c.Reddit.UserAgent, "REDDIT_USER_AGENT")

	setString(&c.Source.Subreddit, "SOURCE_SUBREDDIT", "SUBREDDIT")
	setString(&c.Source.Scanner, "LISTING_SCANNER")
	setInt(&c.Source.ScanLimit, "SCAN_LIMIT")
	setInt(&c.Source.WindowDays, "WINDOW_DAYS")

	setString(&c.Target.Subreddit, "TARGET_SUBREDDIT")
	setString(&c.Target.Flair, "HIGHLIGHTS_FLAIR")
	setString(&c.Target.PostID, "TARGET_POST_ID")
	setBool(&c.Target.DryRun, "DRY_RUN")

	setInt(&c.Classification.MinScore, "MIN_SCORE")
	c.overrideLimit(getenv, "DRAMA_REVIEW_LIMIT", "drama review", &errs)
	c.overrideLimit(getenv, "DISCUSSIONS_LIMIT", "discussions", &errs)

	setBool(&c.Digest.ShowThumbnails, "SHOW_THUMBNAILS")

	setString(&c.Campaign.Start, "EVENT_START")
	setString(&c.Campaign.End, "EVENT_END")
	setString(&c.Campaign.Name, "EVENT_NAME")
	setString(&c.Campaign.Body, "EVENT_BODY")

	setBool(&c.Sticky.Enabled, "STICKY")
	setString(&c.Sticky.Position, "STICKY_POSITION")
	setString(&c.Sticky.SuggestedSort, "SUGGESTED_SORT")

	setString(&c.Scheduler.Timezone, "TIMEZONE")
	setString(&c.Scheduler.CronExpression, "SCHEDULE_CRON")
	setString(&c.Status.Addr, "STATUS_ADDR")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Notifications.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Notifications.Telegram.ChatID, "TELEGRAM_CHAT_ID")

	setString(&c.Logging.Level, "LOG_LEVEL")
	if strings.EqualFold(strings.TrimSpace(getenv("DEBUG")), "true") {
		c.Logging.Level = "debug"
	}

	if c.Target.Subreddit == "" {
		c.Target.Subreddit = c.Source.Subreddit
	}

	return errors.Join(errs...)
}

func (c *Config) overrideLimit(getenv func(string) string, key, category string, errs *[]error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
		return
	}
	for i := range c.Classification.Categories {
		if c.Classification.Categories[i].Key == category {
			c.Classification.Categories[i].Limit = &n
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

// bindCampaign parses the campaign dates. Missing or invalid dates disable the campaign.
func (c *Config) bindCampaign() {
	c.Campaign.start, c.Campaign.end = time.Time{}, time.Time{}
	if c.Campaign.Start == "" || c.Campaign.End == "" {
		return
	}
	start, err := time.Parse(time.DateOnly, c.Campaign.Start)
	if err != nil {
		log.Printf("config: invalid campaign start %q, campaign disabled", c.Campaign.Start)
		return
	}
	end, err := time.Parse(time.DateOnly, c.Campaign.End)
	if err != nil {
		log.Printf("config: invalid campaign end %q, campaign disabled", c.Campaign.End)
		return
	}
	c.Campaign.start, c.Campaign.end = start, end
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Source.Subreddit == "" {
		errs = append(errs, errors.New("source subreddit is required"))
	}
	if c.Source.ScanLimit <= 0 {
		errs = append(errs, fmt.Errorf("scan limit must be positive, got %d", c.Source.ScanLimit))
	}
	if c.Source.WindowDays <= 0 {
		errs = append(errs, fmt.Errorf("window days must be positive, got %d", c.Source.WindowDays))
	}
	if c.Source.Scanner != scannerAPI && c.Source.Scanner != scannerHTML {
		errs = append(errs, fmt.Errorf("unknown listing scanner %q", c.Source.Scanner))
	}
	if _, err := domain.ParseSlot(c.Sticky.Position); err != nil {
		errs = append(errs, err)
	}
	if c.needsCredentials() && (c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" ||
		c.Reddit.Username == "" || c.Reddit.Password == "") {
		errs = append(errs, errors.New("reddit credentials are required for the api scanner and for publishing"))
	}
	if c.Digest.Marker != "" && !strings.Contains(strings.ToLower(c.Digest.Title), strings.ToLower(c.Digest.Marker)) {
		log.Printf("config: digest title %q does not contain marker %q; previous digests will only be recognized by author", c.Digest.Title, c.Digest.Marker)
	}

	errs = append(errs, c.validateCategories()...)
	return errors.Join(errs...)
}

func (c Config) needsCredentials() bool {
	return c.Source.Scanner == scannerAPI || !c.Target.DryRun
}

func (c Config) validateCategories() []error {
	var errs []error
	cats := c.Classification.Categories
	if len(cats) == 0 {
		return []error{errors.New("at least one category is required")}
	}

	keys := make(map[string]struct{}, len(cats))
	owner := make(map[string]string)
	for _, cat := range cats {
		if cat.Key == "" {
			errs = append(errs, errors.New("category without key"))
			continue
		}
		if _, dup := keys[cat.Key]; dup {
			errs = append(errs, fmt.Errorf("duplicate category key %q", cat.Key))
		}
		keys[cat.Key] = struct{}{}
		if cat.Limit != nil && *cat.Limit <= 0 {
			errs = append(errs, fmt.Errorf("category %q: limit must be positive or omitted, got %d", cat.Key, *cat.Limit))
		}
		for _, alias := range labels.NormalizeAll(cat.Flairs) {
			if prev, ok := owner[alias]; ok && prev != cat.Key {
				errs = append(errs, fmt.Errorf("flair %q is accepted by both %q and %q", alias, prev, cat.Key))
				continue
			}
			owner[alias] = cat.Key
		}
	}

	if len(c.Classification.DisplayOrder) > 0 {
		seen := make(map[string]struct{}, len(c.Classification.DisplayOrder))
		for _, key := range c.Classification.DisplayOrder {
			if _, ok := keys[key]; !ok {
				errs = append(errs, fmt.Errorf("display order references unknown category %q", key))
				continue
			}
			if _, dup := seen[key]; dup {
				errs = append(errs, fmt.Errorf("display order lists %q twice", key))
			}
			seen[key] = struct{}{}
		}
		if len(seen) != len(keys) {
			errs = append(errs, errors.New("display order must list every category"))
		}
	}
	return errs
}

// ScanCategories returns the taxonomy in scan (match precedence) order.
func (c Config) ScanCategories() []domain.Category {
	out := make([]domain.Category, 0, len(c.Classification.Categories))
	for _, cat := range c.Classification.Categories {
		limit := domain.Unbounded
		if cat.Limit != nil {
			limit = *cat.Limit
		}
		out = append(out, domain.Category{
			Key:     cat.Key,
			Aliases: append([]string(nil), cat.Flairs...),
			Label:   cat.Label,
			Icon:    cat.Icon,
			Cap:     limit,
		})
	}
	return out
}

// DisplayCategories returns the taxonomy in presentation order.
func (c Config) DisplayCategories() []domain.Category {
	scan := c.ScanCategories()
	if len(c.Classification.DisplayOrder) == 0 {
		return scan
	}
	byKey := make(map[string]domain.Category, len(scan))
	for _, cat := range scan {
		byKey[cat.Key] = cat
	}
	out := make([]domain.Category, 0, len(scan))
	for _, key := range c.Classification.DisplayOrder {
		if cat, ok := byKey[key]; ok {
			out = append(out, cat)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Reddit: RedditConfig{
			UserAgent:  "highlights-bot/1.0",
			APIBaseURL: "https://oauth.reddit.com",
			TokenURL:   "https://www.reddit.com/api/v1/access_token",
		},
		Source: SourceConfig{
			Subreddit:   "CShortDramas",
			ScanLimit:   1500,
			WindowDays:  7,
			Scanner:     scannerAPI,
			HTMLBaseURL: "https://old.reddit.com",
		},
		Target: TargetConfig{DryRun: true},
		Classification: ClassificationConfig{
			MinScore: 0,
			Categories: []CategoryConfig{
				{Key: "drama review", Icon: "🎭", Label: "Drama Review", Flairs: []string{"📝 Drama Review", "Drama Review"}, Limit: intPtr(5)},
				{Key: "vertical vortex", Icon: "🍿", Label: "Vertical Vortex", Flairs: []string{"🍿 Vertical Vortex", "Vertical Vortex"}, Limit: intPtr(5)},
				{Key: "discussions", Icon: "💬", Label: "Discussions", Flairs: []string{"🗨️ Discussion", "Discussion", "Discussions"}, Limit: intPtr(5)},
				{Key: "recommendations", Icon: "⭐", Label: "Recommendations", Flairs: []string{"⭐ Recommendations", "Recommendation", "Recommendations"}, Limit: intPtr(5)},
				{Key: "actors&couples", Icon: "🌟", Label: "Actors & Couples", Flairs: []string{"🌟Actors/Couples", "Actors/Couples", "Actors & Couples", "Actors&Couples"}, Limit: intPtr(5)},
				{Key: "sneak peek", Icon: "🔮", Label: "Sneak Peek", Flairs: []string{"🔮 Sneak Peek", "Sneak Peek"}, Limit: intPtr(3)},
				{Key: "fun", Icon: "🔥", Label: "Fun", Flairs: []string{"🔥 Fun 🔥", "Fun"}, Limit: intPtr(5)},
				{Key: "found&shared", Icon: "🔗", Label: "Found & Shared", Flairs: []string{"Found & Shared", "Found&Shared", "Found/Shared"}, Limit: intPtr(5)},
			},
			DisplayOrder: []string{
				"drama review",
				"vertical vortex",
				"discussions",
				"recommendations",
				"sneak peek",
				"actors&couples",
				"fun",
				"found&shared",
			},
		},
		Digest: DigestConfig{
			Title:   "✨ Our Highlights✨",
			Marker:  "Our Highlights",
			WikiURL: "https://www.reddit.com/r/CShortDramas/wiki/test3/",
			Footer:  "*Auto-generated weekly roundup.*",
		},
		Sticky:    StickyConfig{Position: "bottom"},
		Scheduler: SchedulerConfig{CronExpression: "0 9 * * 1", Timezone: defaultTimezone},
		Status:    StatusConfig{Addr: ":8080"},
	}
}
