package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"orb-lab/internal/domain"
	"orb-lab/internal/filter"
)

// SetupSpec is one declared production setup inside a window slot.
type SetupSpec struct {
	RiskReward float64        `yaml:"rr" validate:"gt=0"`
	StopMode   string         `yaml:"stop_mode" default:"FULL" validate:"oneof=HALF FULL"`
	SizeFilter *float64       `yaml:"size_filter" validate:"omitempty,gt=0"`
	Condition  *ConditionSpec `yaml:"condition"`
}

// ConditionSpec is a declared entry condition.
type ConditionSpec struct {
	Type  string `yaml:"type" validate:"required"`
	Value string `yaml:"value" validate:"required"`
}

// Setups is the declarative setup document keyed by instrument then ORB name.
// Every window slot is an ordered, non-empty list.
type Setups struct {
	Instruments map[string]map[string][]SetupSpec `yaml:"instruments" validate:"min=1,dive,min=1,dive,min=1,dive"`
}

// LoadSetups reads and validates a setup document.
func LoadSetups(path string, cfg *Config) (*Setups, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setups: %w", err)
	}
	return ParseSetups(b, cfg)
}

// ParseSetups decodes and validates a setup document against the calendar
// and session names of cfg.
func ParseSetups(b []byte, cfg *Config) (*Setups, error) {
	var s Setups
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse setups: %w", err)
	}

	for _, inst := range s.Instruments {
		for _, slot := range inst {
			for i := range slot {
				if err := defaults.Set(&slot[i]); err != nil {
					return nil, fmt.Errorf("apply defaults: %w", err)
				}
				slot[i].StopMode = strings.ToUpper(slot[i].StopMode)
			}
		}
	}

	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("validate setups: %w", err)
	}

	orbs := make(map[string]bool, len(cfg.Calendar.ORBs))
	for _, o := range cfg.Calendar.ORBs {
		orbs[o] = true
	}
	sessions := cfg.SessionNames()
	for _, sym := range sortedKeys(s.Instruments) {
		for _, orbName := range sortedKeys(s.Instruments[sym]) {
			if !orbs[orbName] {
				return nil, fmt.Errorf("validate setups: %s: unknown orb %q", sym, orbName)
			}
			for i, spec := range s.Instruments[sym][orbName] {
				if spec.Condition == nil {
					continue
				}
				c := domain.Condition{Type: spec.Condition.Type, Value: spec.Condition.Value}
				if err := filter.ValidateCondition(c, sessions); err != nil {
					return nil, fmt.Errorf("validate setups: %s/%s[%d]: %w", sym, orbName, i, err)
				}
			}
		}
	}

	return &s, nil
}

// Declared converts the document into domain params keyed by instrument then ORB.
// Slot order is preserved.
func (s *Setups) Declared() map[string]map[string][]domain.SetupParams {
	out := make(map[string]map[string][]domain.SetupParams, len(s.Instruments))
	for sym, slots := range s.Instruments {
		m := make(map[string][]domain.SetupParams, len(slots))
		for orbName, specs := range slots {
			list := make([]domain.SetupParams, 0, len(specs))
			for _, spec := range specs {
				list = append(list, spec.params(orbName))
			}
			m[orbName] = list
		}
		out[sym] = m
	}
	return out
}

func (s SetupSpec) params(orbName string) domain.SetupParams {
	p := domain.SetupParams{
		ORBName:    orbName,
		RiskReward: s.RiskReward,
		StopMode:   domain.StopMode(s.StopMode),
	}
	if s.SizeFilter != nil {
		v := *s.SizeFilter
		p.SizeFilter = &v
	}
	if s.Condition != nil {
		p.Condition = &domain.Condition{Type: s.Condition.Type, Value: s.Condition.Value}
	}
	return p
}
