// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeyBotOwner          = "BOT_OWNER"
	KeyMongoURI          = "MONGO_URI"
	KeyMongoDB           = "MONGO_DB"
	KeyAppEnv            = "APP_ENV"
	KeyLogLevel          = "LOG_LEVEL"
	KeyHTTPPort          = "HTTP_PORT"
	KeyBotMode           = "BOT_MODE"
	KeyWebhookURL        = "WEBHOOK_URL"
	KeyWebhookSecret     = "WEBHOOK_SECRET"
	KeyRequiredChannels  = "REQUIRED_CHANNELS"
	KeyLookupAPIURL      = "LOOKUP_API_URL"
	KeyLookupAPIKey      = "LOOKUP_API_KEY"
	KeyStartBonus        = "START_BONUS"
	KeyLookupCost        = "LOOKUP_COST"
	KeyReferralReward    = "REFERRAL_REWARD"
	KeyBroadcastDelayMS  = "BROADCAST_DELAY_MS"
	KeyKeepaliveURL      = "KEEPALIVE_URL"
	KeyKeepaliveInterval = "KEEPALIVE_INTERVAL"
	KeyPayAPIURL         = "PAY_API_URL"
	KeyPayAPIKey         = "PAY_API_KEY"
	KeyPayWebhookSecret  = "PAY_WEBHOOK_SECRET"
	KeyPayPointsPerUnit  = "PAY_POINTS_PER_UNIT"
	KeyDepositAmounts    = "DEPOSIT_AMOUNTS"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Allowed transport modes.
	ModePolling = "polling"
	ModeWebhook = "webhook"

	// Defaults for optional settings.
	DefaultAppEnv            = EnvProduction
	DefaultLogLevel          = "info"
	DefaultHTTPPort          = 8080
	DefaultBotMode           = ModePolling
	DefaultStartBonus        = 5
	DefaultLookupCost        = 1
	DefaultReferralReward    = 2
	DefaultBroadcastDelay    = 300 * time.Millisecond
	DefaultKeepaliveInterval = 10 * time.Minute
	DefaultPayPointsPerUnit  = 2
	DefaultDepositAmounts    = "10,20,50,100"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Secret      bool   // redacted in diagnostic output
	Description string // what the variable controls
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Secret:      true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyBotOwner,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id with owner privileges.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Secret:      true,
		Description: "MongoDB connection string.",
	},
	{
		Key:         KeyMongoDB,
		Example:     "numinfo_bot",
		Required:    true,
		Description: "MongoDB database name.",
	},
	{
		Key:         KeyLookupAPIURL,
		Example:     "https://example.com/api/",
		Required:    true,
		Description: "Base URL of the number information API.",
	},
	{
		Key:         KeyLookupAPIKey,
		Example:     "key",
		Required:    true,
		Secret:      true,
		Description: "Access key for the number information API.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP port for health, webhooks, and keepalive.",
	},
	{
		Key:         KeyBotMode,
		Example:     ModePolling + " / " + ModeWebhook,
		Default:     DefaultBotMode,
		Description: "Update transport: long polling or webhook.",
	},
	{
		Key:         KeyWebhookURL,
		Example:     "https://bot.example.com",
		Description: "Public base URL; required when BOT_MODE=webhook.",
	},
	{
		Key:         KeyWebhookSecret,
		Example:     "random-path-segment",
		Secret:      true,
		Description: "Secret path segment for the Telegram webhook route.",
	},
	{
		Key:         KeyRequiredChannels,
		Example:     "@channel|Join our channel|https://t.me/channel",
		Description: "Comma-separated chat|label|join-url entries gating usage. Empty disables the gate.",
	},
	{
		Key:         KeyStartBonus,
		Example:     strconv.Itoa(DefaultStartBonus),
		Default:     strconv.Itoa(DefaultStartBonus),
		Description: "Points granted when an account is first created.",
	},
	{
		Key:         KeyLookupCost,
		Example:     strconv.Itoa(DefaultLookupCost),
		Default:     strconv.Itoa(DefaultLookupCost),
		Description: "Points deducted per successful lookup.",
	},
	{
		Key:         KeyReferralReward,
		Example:     strconv.Itoa(DefaultReferralReward),
		Default:     strconv.Itoa(DefaultReferralReward),
		Description: "Points paid to each side of a completed referral.",
	},
	{
		Key:         KeyBroadcastDelayMS,
		Example:     "300",
		Default:     "300",
		Description: "Delay between broadcast sends, in milliseconds.",
	},
	{
		Key:         KeyKeepaliveURL,
		Example:     "https://bot.example.com/healthz",
		Description: "Self-ping URL to keep the host warm. Empty disables the pinger.",
	},
	{
		Key:         KeyKeepaliveInterval,
		Example:     "10m",
		Default:     "10m",
		Description: "Interval between keepalive pings.",
	},
	{
		Key:         KeyPayAPIURL,
		Example:     "https://gateway.example.com/api/create-order",
		Description: "Payment gateway order-creation endpoint. Empty disables deposits.",
	},
	{
		Key:         KeyPayAPIKey,
		Example:     "key",
		Secret:      true,
		Description: "API key for the payment gateway.",
	},
	{
		Key:         KeyPayWebhookSecret,
		Example:     "shared-secret",
		Secret:      true,
		Description: "Shared secret verifying payment webhook signatures.",
	},
	{
		Key:         KeyPayPointsPerUnit,
		Example:     strconv.Itoa(DefaultPayPointsPerUnit),
		Default:     strconv.Itoa(DefaultPayPointsPerUnit),
		Description: "Points credited per currency unit deposited.",
	},
	{
		Key:         KeyDepositAmounts,
		Example:     DefaultDepositAmounts,
		Default:     DefaultDepositAmounts,
		Description: "Comma-separated deposit amount choices offered to users.",
	},
}

// Channel identifies one required channel for the membership gate.
type Channel struct {
	ChatID  string // numeric -100… id or @username, passed to getChatMember
	Label   string // button label shown in the join prompt
	JoinURL string // invite or t.me link
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	BotOwnerID        int64
	MongoURI          string
	MongoDB           string
	AppEnv            string
	LogLevel          string
	HTTPPort          int
	BotMode           string
	WebhookURL        string
	WebhookSecret     string
	RequiredChannels  []Channel
	LookupAPIURL      string
	LookupAPIKey      string
	StartBonus        int64
	LookupCost        int64
	ReferralReward    int64
	BroadcastDelay    time.Duration
	KeepaliveURL      string
	KeepaliveInterval time.Duration
	PayAPIURL         string
	PayAPIKey         string
	PayWebhookSecret  string
	PayPointsPerUnit  int64
	DepositAmounts    []int64
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:            firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:     strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:          strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:           strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:          firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:          DefaultHTTPPort,
		BotMode:           firstNonEmpty(normalizeEnv(os.Getenv(KeyBotMode)), DefaultBotMode),
		WebhookURL:        strings.TrimSpace(os.Getenv(KeyWebhookURL)),
		WebhookSecret:     strings.TrimSpace(os.Getenv(KeyWebhookSecret)),
		LookupAPIURL:      strings.TrimSpace(os.Getenv(KeyLookupAPIURL)),
		LookupAPIKey:      strings.TrimSpace(os.Getenv(KeyLookupAPIKey)),
		KeepaliveURL:      strings.TrimSpace(os.Getenv(KeyKeepaliveURL)),
		PayAPIURL:         strings.TrimSpace(os.Getenv(KeyPayAPIURL)),
		PayAPIKey:         strings.TrimSpace(os.Getenv(KeyPayAPIKey)),
		PayWebhookSecret:  strings.TrimSpace(os.Getenv(KeyPayWebhookSecret)),
		BroadcastDelay:    DefaultBroadcastDelay,
		KeepaliveInterval: DefaultKeepaliveInterval,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}
	if err := validateBotMode(cfg.BotMode); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	ownerRaw := strings.TrimSpace(os.Getenv(KeyBotOwner))
	if ownerRaw == "" {
		missing = append(missing, KeyBotOwner)
	} else {
		ownerID, parseErr := strconv.ParseInt(ownerRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBotOwner, parseErr)
		}
		cfg.BotOwnerID = ownerID
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}
	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}
	if cfg.LookupAPIURL == "" {
		missing = append(missing, KeyLookupAPIURL)
	}
	if cfg.LookupAPIKey == "" {
		missing = append(missing, KeyLookupAPIKey)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.BotMode == ModeWebhook {
		if cfg.WebhookURL == "" {
			return Config{}, fmt.Errorf("%s is required when %s=%s", KeyWebhookURL, KeyBotMode, ModeWebhook)
		}
		if cfg.WebhookSecret == "" {
			return Config{}, fmt.Errorf("%s is required when %s=%s", KeyWebhookSecret, KeyBotMode, ModeWebhook)
		}
	}

	if err := parseOptionalInt(KeyHTTPPort, func(v int64) { cfg.HTTPPort = int(v) }, 1); err != nil {
		return Config{}, err
	}

	cfg.StartBonus = DefaultStartBonus
	if err := parseOptionalInt(KeyStartBonus, func(v int64) { cfg.StartBonus = v }, 0); err != nil {
		return Config{}, err
	}

	cfg.LookupCost = DefaultLookupCost
	if err := parseOptionalInt(KeyLookupCost, func(v int64) { cfg.LookupCost = v }, 1); err != nil {
		return Config{}, err
	}

	cfg.ReferralReward = DefaultReferralReward
	if err := parseOptionalInt(KeyReferralReward, func(v int64) { cfg.ReferralReward = v }, 0); err != nil {
		return Config{}, err
	}

	if err := parseOptionalInt(KeyBroadcastDelayMS, func(v int64) {
		cfg.BroadcastDelay = time.Duration(v) * time.Millisecond
	}, 0); err != nil {
		return Config{}, err
	}

	if raw := strings.TrimSpace(os.Getenv(KeyKeepaliveInterval)); raw != "" {
		interval, parseErr := time.ParseDuration(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyKeepaliveInterval, parseErr)
		}
		if interval <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyKeepaliveInterval)
		}
		cfg.KeepaliveInterval = interval
	}

	cfg.PayPointsPerUnit = DefaultPayPointsPerUnit
	if err := parseOptionalInt(KeyPayPointsPerUnit, func(v int64) { cfg.PayPointsPerUnit = v }, 1); err != nil {
		return Config{}, err
	}

	channels, err := parseChannels(os.Getenv(KeyRequiredChannels))
	if err != nil {
		return Config{}, err
	}
	cfg.RequiredChannels = channels

	amounts, err := parseAmounts(firstNonEmpty(strings.TrimSpace(os.Getenv(KeyDepositAmounts)), DefaultDepositAmounts))
	if err != nil {
		return Config{}, err
	}
	cfg.DepositAmounts = amounts

	if cfg.PayAPIURL != "" {
		if cfg.PayAPIKey == "" {
			return Config{}, fmt.Errorf("%s is required when %s is set", KeyPayAPIKey, KeyPayAPIURL)
		}
		if cfg.PayWebhookSecret == "" {
			return Config{}, fmt.Errorf("%s is required when %s is set", KeyPayWebhookSecret, KeyPayAPIURL)
		}
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// IsOwner reports whether the given Telegram user id is the configured owner.
func (c Config) IsOwner(userID int64) bool {
	return userID != 0 && userID == c.BotOwnerID
}

// PaymentsEnabled reports whether a payment gateway is configured.
func (c Config) PaymentsEnabled() bool {
	return c.PayAPIURL != ""
}

// GateEnabled reports whether any membership channels are configured.
func (c Config) GateEnabled() bool {
	return len(c.RequiredChannels) > 0
}

func parseOptionalInt(key string, assign func(int64), min int64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < min {
		return fmt.Errorf("%s must be at least %d", key, min)
	}

	assign(value)
	return nil
}

// parseChannels parses comma-separated chat|label|join-url entries.
func parseChannels(raw string) ([]Channel, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	entries := strings.Split(raw, ",")
	channels := make([]Channel, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid %s entry %q: want chat|label|join-url", KeyRequiredChannels, entry)
		}

		ch := Channel{
			ChatID:  strings.TrimSpace(parts[0]),
			Label:   strings.TrimSpace(parts[1]),
			JoinURL: strings.TrimSpace(parts[2]),
		}
		if ch.ChatID == "" || ch.Label == "" || ch.JoinURL == "" {
			return nil, fmt.Errorf("invalid %s entry %q: empty field", KeyRequiredChannels, entry)
		}

		channels = append(channels, ch)
	}

	return channels, nil
}

func parseAmounts(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	amounts := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		value, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", KeyDepositAmounts, part, err)
		}
		if value <= 0 {
			return nil, fmt.Errorf("%s entries must be greater than 0, got %d", KeyDepositAmounts, value)
		}

		amounts = append(amounts, value)
	}

	if len(amounts) == 0 {
		return nil, fmt.Errorf("%s must contain at least one amount", KeyDepositAmounts)
	}

	return amounts, nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateBotMode(mode string) error {
	if mode == ModePolling || mode == ModeWebhook {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyBotMode, ModePolling, ModeWebhook)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
