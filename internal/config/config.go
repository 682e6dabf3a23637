package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string
}

type DBCfg struct{ DSN string }

type RedisCfg struct {
	Addr     string
	Password string
	DB       int
}

type SecurityCfg struct {
	AESKey       []byte
	AdminToken   string // guards /admin routes
	ServiceToken string // guards internal dispatch routes
}

// UCSCfg configures the unified connector service substrate.
type UCSCfg struct {
	Enabled          bool
	Addr             string
	Timeout          time.Duration
	RolloutPercent   float64
	UnifiedOnly      []string
	RefreshInterval  time.Duration
	SnapshotRedisKey string
	TenantID         string
}

type TokenCfg struct {
	ExpiryBuffer time.Duration
}

type EventsCfg struct {
	Brokers []string
	Topic   string
}

// ReconcileCfg drives the background sync of payments waiting on a
// connector.
type ReconcileCfg struct {
	Interval time.Duration
	MinAge   time.Duration
}

type TelemetryCfg struct {
	OTLPEndpoint string
	ServiceName  string
}

// ConnectorsCfg holds per-connector base URLs keyed by connector name.
type ConnectorsCfg struct {
	BaseURLs         map[string]string
	Timeout          time.Duration
	MpesaCallbackURL string
}

// BaseURL returns the configured base url for a connector.
func (c ConnectorsCfg) BaseURL(connector string) string {
	return strings.TrimRight(c.BaseURLs[connector], "/")
}

type Cfg struct {
	App        AppCfg
	DB         DBCfg
	Redis      RedisCfg
	Sec        SecurityCfg
	UCS        UCSCfg
	Tokens     TokenCfg
	Events     EventsCfg
	Reconcile  ReconcileCfg
	Telemetry  TelemetryCfg
	Connectors ConnectorsCfg
}

func Load() Cfg {
	cfg, err := load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}

func load(dotenv string) (Cfg, error) {
	// 1) Load .env into process env (if file exists)
	_ = godotenv.Load(dotenv)

	// 2) Read from env via viper
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_ENV", "sandbox")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("UCS_ENABLED", false)
	v.SetDefault("UCS_TIMEOUT", "10s")
	v.SetDefault("UCS_ROLLOUT_PERCENT", 0)
	v.SetDefault("UCS_REFRESH_INTERVAL", "30s")
	v.SetDefault("UCS_SNAPSHOT_REDIS_KEY", "payswitch:ucs:rollout")
	v.SetDefault("UCS_TENANT_ID", "public")
	v.SetDefault("ACCESS_TOKEN_EXPIRY_BUFFER", "60s")
	v.SetDefault("EVENTS_TOPIC", "ucs-events")
	v.SetDefault("RECONCILE_INTERVAL", "15s")
	v.SetDefault("RECONCILE_MIN_AGE", "30s")
	v.SetDefault("OTEL_SERVICE_NAME", "payswitch")
	v.SetDefault("CONNECTOR_TIMEOUT", "30s")
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("SERVICE_TOKEN", "")

	keyB64 := v.GetString("AES_256_KEY_BASE64")
	key, keyErr := base64.StdEncoding.DecodeString(keyB64)

	cfg := Cfg{
		App: AppCfg{
			Env:       v.GetString("APP_ENV"),
			Port:      v.GetString("APP_PORT"),
			LogLevel:  v.GetString("LOG_LEVEL"),
			LogFormat: v.GetString("LOG_FORMAT"),
		},
		DB: DBCfg{DSN: v.GetString("DB_DSN")},
		Redis: RedisCfg{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Sec: SecurityCfg{
			AESKey:       key,
			AdminToken:   strings.TrimSpace(v.GetString("ADMIN_TOKEN")),
			ServiceToken: strings.TrimSpace(v.GetString("SERVICE_TOKEN")),
		},
		UCS: UCSCfg{
			Enabled:          v.GetBool("UCS_ENABLED"),
			Addr:             v.GetString("UCS_ADDR"),
			Timeout:          v.GetDuration("UCS_TIMEOUT"),
			RolloutPercent:   v.GetFloat64("UCS_ROLLOUT_PERCENT"),
			UnifiedOnly:      splitAndTrim(v.GetString("UCS_UNIFIED_ONLY_CONNECTORS")),
			RefreshInterval:  v.GetDuration("UCS_REFRESH_INTERVAL"),
			SnapshotRedisKey: v.GetString("UCS_SNAPSHOT_REDIS_KEY"),
			TenantID:         v.GetString("UCS_TENANT_ID"),
		},
		Tokens: TokenCfg{ExpiryBuffer: v.GetDuration("ACCESS_TOKEN_EXPIRY_BUFFER")},
		Events: EventsCfg{
			Brokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("EVENTS_TOPIC"),
		},
		Reconcile: ReconcileCfg{
			Interval: v.GetDuration("RECONCILE_INTERVAL"),
			MinAge:   v.GetDuration("RECONCILE_MIN_AGE"),
		},
		Telemetry: TelemetryCfg{
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		},
		Connectors: ConnectorsCfg{
			BaseURLs:         connectorBaseURLs(os.Environ()),
			Timeout:          v.GetDuration("CONNECTOR_TIMEOUT"),
			MpesaCallbackURL: v.GetString("MPESA_CALLBACK_URL"),
		},
	}

	// 3) Fail fast on required settings
	if cfg.DB.DSN == "" {
		return Cfg{}, fmt.Errorf("DB_DSN is required")
	}
	if keyErr != nil || len(cfg.Sec.AESKey) != 32 {
		return Cfg{}, fmt.Errorf("AES_256_KEY_BASE64 must be a valid 32-byte base64 key")
	}
	if cfg.UCS.Enabled && cfg.UCS.Addr == "" {
		return Cfg{}, fmt.Errorf("UCS_ADDR is required when UCS_ENABLED=true")
	}
	if cfg.UCS.RolloutPercent < 0 || cfg.UCS.RolloutPercent > 100 {
		return Cfg{}, fmt.Errorf("UCS_ROLLOUT_PERCENT must be within [0, 100]")
	}
	return cfg, nil
}

// connectorBaseURLs collects CONNECTOR_<NAME>_BASE_URL variables.
func connectorBaseURLs(environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "CONNECTOR_") || !strings.HasSuffix(k, "_BASE_URL") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(k, "CONNECTOR_"), "_BASE_URL")
		if name == "" {
			continue
		}
		out[strings.ToLower(name)] = strings.TrimSpace(val)
	}
	return out
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
