package config

import (
	"orb-lab/internal/features"
	"orb-lab/internal/orb"
	"orb-lab/internal/promotion"
)

// FeatureSpec builds the calendar, trade params and indicator periods used to compute feature rows.
func (c *Config) FeatureSpec() (features.Spec, error) {
	cal, err := c.BuildCalendar()
	if err != nil {
		return features.Spec{}, err
	}
	return features.Spec{
		Calendar:    cal,
		Params:      orb.Params{RiskReward: c.Simulation.RiskReward, StopMode: c.StopMode()},
		ScanHorizon: c.Simulation.ScanHorizon,
		ATRPeriod:   c.Indicators.ATRPeriod,
		RSIPeriod:   c.Indicators.RSIPeriod,
	}, nil
}

// Thresholds returns the promotion gates.
func (c *Config) Thresholds() promotion.Thresholds {
	p := c.Promotion
	return promotion.Thresholds{
		MinAvgR:               p.MinAvgR,
		MinTrades:             p.MinTrades,
		Partitions:            p.Partitions,
		MinPositivePartitions: p.MinPositivePartitions,
		TopTierAvgR:           p.TopTierAvgR,
		MidTierAvgR:           p.MidTierAvgR,
	}
}
