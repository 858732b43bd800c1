package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	MigrateOnStart bool          `mapstructure:"MIGRATE_ON_START"`

	WisphubURL       string        `mapstructure:"WISPHUB_URL"`
	WisphubAPIKey    string        `mapstructure:"WISPHUB_API_KEY"`
	WisphubTimeout   time.Duration `mapstructure:"WISPHUB_TIMEOUT"`
	WisphubRateLimit float64       `mapstructure:"WISPHUB_RATE_LIMIT"`
	StaffCacheTTL    time.Duration `mapstructure:"WISPHUB_STAFF_CACHE_TTL"`

	SyncPageDelay        time.Duration `mapstructure:"SYNC_PAGE_DELAY"`
	SyncMaxPages         int           `mapstructure:"SYNC_MAX_PAGES"`
	SyncLookbackDays     int           `mapstructure:"SYNC_LOOKBACK_DAYS"`
	SyncFullLookbackDays int           `mapstructure:"SYNC_FULL_LOOKBACK_DAYS"`

	WorkItemSLA    time.Duration `mapstructure:"WORK_ITEM_SLA"`
	EscalationSLA  time.Duration `mapstructure:"ESCALATION_SLA"`
	AutoCloseAfter time.Duration `mapstructure:"AUTO_CLOSE_AFTER"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`

	IdentityOverrides              string `mapstructure:"IDENTITY_OVERRIDES"`
	IdentityAutoApplyLowConfidence bool   `mapstructure:"IDENTITY_AUTO_APPLY_LOW_CONFIDENCE"`

	TicketSubjects       string `mapstructure:"TICKET_SUBJECTS"`
	TicketDefaultSubject string `mapstructure:"TICKET_DEFAULT_SUBJECT"`
	TicketResolvedStatus int    `mapstructure:"TICKET_RESOLVED_STATUS"`

	GeocoderURL       string `mapstructure:"GEOCODER_URL"`
	GeocoderUserAgent string `mapstructure:"GEOCODER_USER_AGENT"`
	GeocoderCountries string `mapstructure:"GEOCODER_COUNTRY_CODES"`
	CountryDefault    string `mapstructure:"COUNTRY_DEFAULT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	// Keys without a default are invisible to Unmarshal under AutomaticEnv.
	v.SetDefault("ENV", "dev")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MIGRATE_ON_START", true)

	v.SetDefault("WISPHUB_URL", "https://api.wisphub.net")
	v.SetDefault("WISPHUB_API_KEY", "")
	v.SetDefault("WISPHUB_TIMEOUT", "30s")
	v.SetDefault("WISPHUB_RATE_LIMIT", 4)
	v.SetDefault("WISPHUB_STAFF_CACHE_TTL", "10m")

	v.SetDefault("SYNC_PAGE_DELAY", "300ms")
	v.SetDefault("SYNC_MAX_PAGES", 50)
	v.SetDefault("SYNC_LOOKBACK_DAYS", 30)
	v.SetDefault("SYNC_FULL_LOOKBACK_DAYS", 60)

	v.SetDefault("WORK_ITEM_SLA", "24h")
	v.SetDefault("ESCALATION_SLA", "4h")
	v.SetDefault("AUTO_CLOSE_AFTER", "24h")
	v.SetDefault("SWEEP_INTERVAL", "5m")

	v.SetDefault("IDENTITY_OVERRIDES", "")
	v.SetDefault("IDENTITY_AUTO_APPLY_LOW_CONFIDENCE", false)

	v.SetDefault("TICKET_SUBJECTS", "Sin servicio,Internet lento,Cambio de equipo,Traslado,Revision de instalacion,Otro")
	v.SetDefault("TICKET_DEFAULT_SUBJECT", "Otro")
	v.SetDefault("TICKET_RESOLVED_STATUS", 3)

	v.SetDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("GEOCODER_USER_AGENT", "rapilink-backend")
	v.SetDefault("GEOCODER_COUNTRY_CODES", "co")
	v.SetDefault("COUNTRY_DEFAULT", "Colombia")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Subjects splits TICKET_SUBJECTS into the allowed upstream subject list.
func (c Config) Subjects() []string {
	var out []string
	for _, s := range strings.Split(c.TicketSubjects, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
