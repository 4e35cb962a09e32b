package config

import (
	"fmt"
	"strings"
	"time"
)

// DiscoveryConfig controls the discovery workflow and the tool-driven agent.
type DiscoveryConfig struct {
	MaxRetries      int                `mapstructure:"max_retries"`
	TopN            int                `mapstructure:"top_n"`
	HistoryLimit    int                `mapstructure:"history_limit"`
	RelaxIncrements map[string]float64 `mapstructure:"relax_increments"`

	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
	WebTimeout       time.Duration `mapstructure:"web_timeout"`
	EvaluatorTimeout time.Duration `mapstructure:"evaluator_timeout"`
	HistoryTimeout   time.Duration `mapstructure:"history_timeout"`
	SessionTimeout   time.Duration `mapstructure:"session_timeout"`

	StepBudget     int           `mapstructure:"step_budget"`
	AgentTimeout   time.Duration `mapstructure:"agent_timeout"`
	MaxExtractURLs int           `mapstructure:"max_extract_urls"`
	MaxQueryLength int           `mapstructure:"max_query_length"`

	ReferenceCurrency string             `mapstructure:"reference_currency"`
	CurrencyRates     map[string]float64 `mapstructure:"currency_rates"`
}

// DefaultCurrencyRates converts one unit of a currency into USD.
var DefaultCurrencyRates = map[string]float64{
	"USD": 1,
	"EUR": 1.08,
	"GBP": 1.27,
	"CNY": 0.14,
	"INR": 0.012,
	"LKR": 0.0033,
	"JPY": 0.0067,
}

// Normalize applies defaults for unset discovery values.
func (d DiscoveryConfig) Normalize() DiscoveryConfig {
	if d.MaxRetries <= 0 {
		d.MaxRetries = 3
	}
	if d.TopN <= 0 {
		d.TopN = 10
	}
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = 5
	}
	if len(d.RelaxIncrements) == 0 {
		d.RelaxIncrements = map[string]float64{"delivery_time_days": 5}
	}
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = 10 * time.Second
	}
	if d.WebTimeout <= 0 {
		d.WebTimeout = 30 * time.Second
	}
	if d.EvaluatorTimeout <= 0 {
		d.EvaluatorTimeout = 60 * time.Second
	}
	if d.HistoryTimeout <= 0 {
		d.HistoryTimeout = 5 * time.Second
	}
	if d.SessionTimeout <= 0 {
		d.SessionTimeout = 5 * time.Minute
	}
	if d.StepBudget <= 0 {
		d.StepBudget = 25
	}
	if d.MaxExtractURLs <= 0 {
		d.MaxExtractURLs = 15
	}
	if d.MaxQueryLength <= 0 {
		d.MaxQueryLength = 2000
	}
	d.ReferenceCurrency = strings.ToUpper(strings.TrimSpace(d.ReferenceCurrency))
	if d.ReferenceCurrency == "" {
		d.ReferenceCurrency = "USD"
	}
	rates := make(map[string]float64, len(DefaultCurrencyRates)+len(d.CurrencyRates))
	for k, v := range DefaultCurrencyRates {
		rates[k] = v
	}
	// viper lower-cases map keys
	for k, v := range d.CurrencyRates {
		rates[strings.ToUpper(k)] = v
	}
	d.CurrencyRates = rates
	return d
}

// Validate checks the discovery configuration.
func (d DiscoveryConfig) Validate() error {
	for field, inc := range d.RelaxIncrements {
		if inc <= 0 {
			return fmt.Errorf("discovery.relax_increments.%s must be > 0", field)
		}
	}
	if _, ok := d.CurrencyRates[d.ReferenceCurrency]; !ok {
		return fmt.Errorf("discovery.currency_rates missing reference currency %s", d.ReferenceCurrency)
	}
	for code, rate := range d.CurrencyRates {
		if rate <= 0 {
			return fmt.Errorf("discovery.currency_rates.%s must be > 0", strings.ToLower(code))
		}
	}
	if d.AgentTimeout < 0 {
		return fmt.Errorf("discovery.agent_timeout cannot be negative")
	}
	if d.TopN > 50 {
		return fmt.Errorf("discovery.top_n must be <= 50")
	}
	return nil
}
