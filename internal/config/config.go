package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Auto-approval ledger actions.
const (
	ActionCommit  = "commit"
	ActionReserve = "reserve"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	DatabaseURL         string
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	AutoMigrate         bool

	Approval ApprovalConfig
	Import   ImportConfig
}

// ApprovalConfig drives the decision engine and the ledger check.
type ApprovalConfig struct {
	DefaultThreshold           decimal.Decimal
	DepartmentThresholds       map[string]decimal.Decimal
	CriticalUtilizationPercent decimal.Decimal
	PendingWindow              time.Duration
	AutoApproveAction          string // "commit" | "reserve"
	CurrencyRates              map[string]decimal.Decimal // key "FROM:TO"
}

// ImportConfig bounds a bulk budget import.
type ImportConfig struct {
	Timeout      time.Duration
	MaxRowErrors int
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	approval, err := loadApproval()
	if err != nil {
		return nil, err
	}
	imp, err := loadImport()
	if err != nil {
		return nil, err
	}

	logLevel := viper.GetString("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		Env:                 env,
		Port:                port,
		LogLevel:            logLevel,
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		AutoMigrate:         strings.EqualFold(viper.GetString("AUTO_MIGRATE"), "true"),
		Approval:            approval,
		Import:              imp,
	}, nil
}

func loadApproval() (ApprovalConfig, error) {
	cfg := ApprovalConfig{
		DefaultThreshold:           decimal.NewFromInt(5000),
		CriticalUtilizationPercent: decimal.NewFromInt(90),
		PendingWindow:              48 * time.Hour,
		AutoApproveAction:          ActionCommit,
	}

	if s := viper.GetString("DEFAULT_AUTO_APPROVAL_THRESHOLD"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return cfg, fmt.Errorf("DEFAULT_AUTO_APPROVAL_THRESHOLD: %w", err)
		}
		cfg.DefaultThreshold = d
	}
	if s := viper.GetString("CRITICAL_UTILIZATION_PERCENT"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return cfg, fmt.Errorf("CRITICAL_UTILIZATION_PERCENT: %w", err)
		}
		cfg.CriticalUtilizationPercent = d
	}
	if s := viper.GetString("PENDING_WINDOW"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return cfg, fmt.Errorf("PENDING_WINDOW: %w", err)
		}
		cfg.PendingWindow = d
	}
	if s := strings.ToLower(strings.TrimSpace(viper.GetString("AUTO_APPROVE_ACTION"))); s != "" {
		if s != ActionCommit && s != ActionReserve {
			return cfg, fmt.Errorf("AUTO_APPROVE_ACTION must be %q or %q", ActionCommit, ActionReserve)
		}
		cfg.AutoApproveAction = s
	}

	thresholds, err := ParseDepartmentThresholds(viper.GetString("DEPARTMENT_THRESHOLDS"))
	if err != nil {
		return cfg, err
	}
	cfg.DepartmentThresholds = thresholds

	rates := viper.GetString("CURRENCY_RATES")
	if rates == "" {
		rates = "USD:GBP=0.79,GBP:USD=1.27"
	}
	cfg.CurrencyRates, err = ParseCurrencyRates(rates)
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadImport() (ImportConfig, error) {
	cfg := ImportConfig{Timeout: 30 * time.Second, MaxRowErrors: 10}
	if s := viper.GetString("IMPORT_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return cfg, fmt.Errorf("IMPORT_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if s := viper.GetString("IMPORT_MAX_ROW_ERRORS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("IMPORT_MAX_ROW_ERRORS must be a non-negative integer")
		}
		cfg.MaxRowErrors = n
	}
	return cfg, nil
}

// ParseDepartmentThresholds parses "Engineering=20000,Sales=5000".
// Keys are lower-cased so lookups are case-insensitive.
func ParseDepartmentThresholds(s string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, pair := range splitList(s) {
		name, amount, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("DEPARTMENT_THRESHOLDS: malformed entry %q", pair)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil || d.IsNegative() {
			return nil, fmt.Errorf("DEPARTMENT_THRESHOLDS: invalid amount for %q", name)
		}
		out[strings.ToLower(name)] = d
	}
	return out, nil
}

// ParseCurrencyRates parses "USD:GBP=0.79,GBP:USD=1.27" into a map keyed "USD:GBP".
func ParseCurrencyRates(s string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, pair := range splitList(s) {
		key, rate, ok := strings.Cut(pair, "=")
		from, to, okPair := strings.Cut(strings.TrimSpace(key), ":")
		if !ok || !okPair || from == "" || to == "" {
			return nil, fmt.Errorf("CURRENCY_RATES: malformed entry %q", pair)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("CURRENCY_RATES: invalid rate for %q", key)
		}
		out[strings.ToUpper(strings.TrimSpace(from))+":"+strings.ToUpper(strings.TrimSpace(to))] = d
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
