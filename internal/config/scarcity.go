package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// CategoryLimits is the promotional capacity of one category. A limit <= 0
// means the tier is unlimited.
type CategoryLimits struct {
	Tier           string            `mapstructure:"tier" json:"tier"`
	Featured       int               `mapstructure:"featured" json:"featured"`
	Sponsor        int               `mapstructure:"sponsor" json:"sponsor"`
	ZoneLevel      bool              `mapstructure:"zone_level" json:"zone_level"`
	SpecialtyLevel bool              `mapstructure:"specialty_level" json:"specialty_level"`
	Messages       map[string]string `mapstructure:"messages" json:"messages,omitempty"`
}

// UrgencyThresholds are upper bounds on the percentage of slots left.
type UrgencyThresholds struct {
	Critical float64 `mapstructure:"critical" json:"critical"`
	High     float64 `mapstructure:"high" json:"high"`
	Medium   float64 `mapstructure:"medium" json:"medium"`
}

// CompetitionThresholds are lower bounds on sponsor saturation.
type CompetitionThresholds struct {
	Saturated float64 `mapstructure:"saturated" json:"saturated"`
	High      float64 `mapstructure:"high" json:"high"`
	Medium    float64 `mapstructure:"medium" json:"medium"`
}

type ScarcityConfig struct {
	Categories          map[string]CategoryLimits `mapstructure:"categories" json:"categories"`
	Zones               []string                  `mapstructure:"zones" json:"zones"`
	Urgency             UrgencyThresholds         `mapstructure:"urgency" json:"urgency"`
	Competition         CompetitionThresholds     `mapstructure:"competition" json:"competition"`
	FallbackSlots       int                       `mapstructure:"fallback_slots" json:"fallback_slots"`
	OfferHoldHours      int                       `mapstructure:"offer_hold_hours" json:"offer_hold_hours"`
	WaitDaysPerPosition int                       `mapstructure:"wait_days_per_position" json:"wait_days_per_position"`
}

// PlanConfig holds the paid plan lifecycle constants used by the inbox and
// the payment jobs.
type PlanConfig struct {
	InboxSourceLimit     int            `mapstructure:"inbox_source_limit" json:"inbox_source_limit"`
	ExpirationWindowDays int            `mapstructure:"expiration_window_days" json:"expiration_window_days"`
	ExtendDays           int            `mapstructure:"extend_days" json:"extend_days"`
	GracePeriodDays      int            `mapstructure:"grace_period_days" json:"grace_period_days"`
	ReminderDays         []int          `mapstructure:"reminder_days" json:"reminder_days"`
	OverdueAmounts       map[string]int `mapstructure:"overdue_amounts" json:"overdue_amounts"`
}

type DirectoryConfig struct {
	Scarcity ScarcityConfig `mapstructure:"scarcity" json:"scarcity"`
	Plans    PlanConfig     `mapstructure:"plans" json:"plans"`
}

func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		Scarcity: ScarcityConfig{
			Categories: map[string]CategoryLimits{
				"restaurantes": {Tier: "saturated", Featured: 10, Sponsor: 3, ZoneLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 3 restaurantes pueden ser Líderes en tu zona",
					"featured": "Máximo 10 restaurantes Destacados por zona",
				}},
				"taquerias": {Tier: "saturated", Featured: 8, Sponsor: 2, ZoneLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 2 taquerías Líderes por zona",
					"featured": "Máximo 8 taquerías Destacadas por zona",
				}},
				"ferreterias": {Tier: "saturated", Featured: 10, Sponsor: 3, ZoneLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 3 ferreterías pueden dominar tu zona",
					"featured": "Máximo 10 ferreterías Destacadas por zona",
				}},
				"farmacias": {Tier: "saturated", Featured: 8, Sponsor: 2, ZoneLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 2 farmacias Líderes por zona",
					"featured": "Máximo 8 farmacias Destacadas por zona",
				}},
				"abarrotes": {Tier: "saturated", Featured: 12, Sponsor: 3, ZoneLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 3 tiendas de abarrotes pueden ser Líderes",
					"featured": "Máximo 12 tiendas Destacadas por zona",
				}},
				"veterinarias": {Tier: "specialized", Featured: 5, Sponsor: 2, Messages: map[string]string{
					"sponsor":  "Solo 2 veterinarias Líderes en toda la ciudad",
					"featured": "Máximo 5 veterinarias Destacadas en la ciudad",
				}},
				"gimnasios": {Tier: "specialized", Featured: 5, Sponsor: 2, Messages: map[string]string{
					"sponsor":  "Solo 2 gimnasios pueden ser Líderes en la ciudad",
					"featured": "Máximo 5 gimnasios Destacados en la ciudad",
				}},
				"escuelas": {Tier: "specialized", Featured: 8, Sponsor: 3, Messages: map[string]string{
					"sponsor":  "Solo 3 escuelas Líderes en la ciudad",
					"featured": "Máximo 8 escuelas Destacadas",
				}},
				"talleres": {Tier: "specialized", Featured: 6, Sponsor: 2, ZoneLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 2 talleres mecánicos Líderes por zona",
					"featured": "Máximo 6 talleres Destacados por zona",
				}},
				"salones_belleza": {Tier: "specialized", Featured: 8, Sponsor: 3, ZoneLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 3 salones pueden ser Líderes en tu zona",
					"featured": "Máximo 8 salones Destacados por zona",
				}},
				"abogados": {Tier: "premium", Featured: 0, Sponsor: 1, SpecialtyLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 1 abogado Líder por especialidad en toda la ciudad",
					"featured": "Sin límite de abogados Destacados",
				}},
				"doctores": {Tier: "premium", Featured: 0, Sponsor: 1, SpecialtyLevel: true, Messages: map[string]string{
					"sponsor":  "Solo 1 doctor Líder por especialidad",
					"featured": "Sin límite de doctores Destacados",
				}},
				"contadores": {Tier: "premium", Featured: 10, Sponsor: 1, Messages: map[string]string{
					"sponsor":  "Solo 1 contador puede ser Líder en la ciudad",
					"featured": "Máximo 10 contadores Destacados",
				}},
				"arquitectos": {Tier: "premium", Featured: 8, Sponsor: 1, Messages: map[string]string{
					"sponsor":  "Solo 1 arquitecto Líder en la ciudad",
					"featured": "Máximo 8 arquitectos Destacados",
				}},
			},
			Zones:               []string{"centro", "norte", "sur", "periferia"},
			Urgency:             UrgencyThresholds{Critical: 10, High: 25, Medium: 50},
			Competition:         CompetitionThresholds{Saturated: 100, High: 75, Medium: 50},
			FallbackSlots:       999,
			OfferHoldHours:      48,
			WaitDaysPerPosition: 30,
		},
		Plans: PlanConfig{
			InboxSourceLimit:     20,
			ExpirationWindowDays: 7,
			ExtendDays:           30,
			GracePeriodDays:      7,
			ReminderDays:         []int{7, 3, 1},
			OverdueAmounts:       map[string]int{"sponsor": 299, "featured": 99},
		},
	}
}

const directoryConfigSchema = `{
  "type": "object",
  "required": ["scarcity", "plans"],
  "properties": {
    "scarcity": {
      "type": "object",
      "required": ["categories", "urgency", "competition", "fallback_slots"],
      "properties": {
        "categories": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "required": ["featured", "sponsor"],
            "properties": {
              "tier": {"enum": ["", "saturated", "specialized", "premium"]},
              "featured": {"type": "integer"},
              "sponsor": {"type": "integer"}
            }
          }
        },
        "urgency": {
          "type": "object",
          "properties": {
            "critical": {"type": "number", "minimum": 0, "maximum": 100},
            "high": {"type": "number", "minimum": 0, "maximum": 100},
            "medium": {"type": "number", "minimum": 0, "maximum": 100}
          }
        },
        "competition": {
          "type": "object",
          "properties": {
            "saturated": {"type": "number", "minimum": 0},
            "high": {"type": "number", "minimum": 0},
            "medium": {"type": "number", "minimum": 0}
          }
        },
        "fallback_slots": {"type": "integer", "minimum": 1},
        "offer_hold_hours": {"type": "integer", "minimum": 1},
        "wait_days_per_position": {"type": "integer", "minimum": 0}
      }
    },
    "plans": {
      "type": "object",
      "properties": {
        "inbox_source_limit": {"type": "integer", "minimum": 1, "maximum": 500},
        "expiration_window_days": {"type": "integer", "minimum": 0},
        "extend_days": {"type": "integer", "minimum": 1},
        "grace_period_days": {"type": "integer", "minimum": 0},
        "reminder_days": {"type": "array", "items": {"type": "integer", "minimum": 0}}
      }
    }
  }
}`

var directorySchema = gojsonschema.NewStringLoader(directoryConfigSchema)

// DirectoryConfigHolder serves the capacity and threshold table. The table is
// read from directory.yml and swapped atomically when the file changes.
type DirectoryConfigHolder struct {
	current atomic.Value // holds DirectoryConfig
}

// NewStaticDirectoryConfig returns a holder that never reloads.
func NewStaticDirectoryConfig(cfg DirectoryConfig) *DirectoryConfigHolder {
	holder := &DirectoryConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewDirectoryConfigHolder(log *zap.Logger) (*DirectoryConfigHolder, error) {
	log = log.Named("directory.config")
	v := viper.New()

	v.SetConfigName("directory")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/directory/config")
	v.AddConfigPath("/etc/directory")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DIRECTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("directory config file not found, using defaults")
		return NewStaticDirectoryConfig(DefaultDirectoryConfig()), nil
	}

	cfg, err := decodeDirectoryConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticDirectoryConfig(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeDirectoryConfig(v)
		if err != nil {
			log.Warn("invalid directory config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("directory config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DirectoryConfigHolder) Get() DirectoryConfig {
	return h.current.Load().(DirectoryConfig)
}

func (h *DirectoryConfigHolder) Scarcity() ScarcityConfig {
	return h.Get().Scarcity
}

func (h *DirectoryConfigHolder) Plans() PlanConfig {
	return h.Get().Plans
}

// decodeDirectoryConfig overlays the file on top of the defaults so a partial
// file only overrides what it names.
func decodeDirectoryConfig(v *viper.Viper) (DirectoryConfig, error) {
	cfg := DefaultDirectoryConfig()
	if v.IsSet("scarcity.categories") {
		cfg.Scarcity.Categories = map[string]CategoryLimits{}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return DirectoryConfig{}, err
	}
	if err := ValidateDirectoryConfig(cfg); err != nil {
		return DirectoryConfig{}, err
	}
	return cfg, nil
}

func ValidateDirectoryConfig(cfg DirectoryConfig) error {
	result, err := gojsonschema.Validate(directorySchema, gojsonschema.NewGoLoader(cfg))
	if err != nil {
		return fmt.Errorf("validate directory config: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid directory config: %s", strings.Join(msgs, "; "))
	}

	u := cfg.Scarcity.Urgency
	if !(u.Critical <= u.High && u.High <= u.Medium) {
		return errors.New("scarcity.urgency thresholds must be ascending")
	}
	c := cfg.Scarcity.Competition
	if !(c.Medium <= c.High && c.High <= c.Saturated) {
		return errors.New("scarcity.competition thresholds must be ascending")
	}
	return nil
}
