package solver

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAccuracyMC              = 0.005
	DefaultAccuracyLCPCG           = 0.005
	DefaultAccuracyLCPCGNoImprove  = 0.05
	DefaultMinSeparationSpeed      = 0.02
	DefaultMaxMCIters              = 6000
	DefaultMaxLCPCGIters           = 5
	DefaultMaxLCPCGSubiters        = 120
	DefaultMaxLCPCGSubitersFinal   = 250
	DefaultMaxLCPCGMicroiters      = 12000
	DefaultMaxLCPCGMicroitersFinal = 25000
	DefaultMaxLCPCGFruitlessIters  = 4
	DefaultMinLCPCGImprovement     = 0.1
	DefaultMaxWCG                  = 500
	DefaultMaxVCG                  = 500
	DefaultMaxVUnproj              = 10
	DefaultPreCGMaxContacts        = 20
)

var ErrInvalidSettings = errors.New("invalid solver settings")

// Settings tunes the solver stages
type Settings struct {
	AccuracyMC                 float64 `yaml:"accuracy_mc"`
	AccuracyLCPCG              float64 `yaml:"accuracy_lcpcg"`
	AccuracyLCPCGNoImprovement float64 `yaml:"accuracy_lcpcg_no_improvement"`
	MinSeparationSpeed         float64 `yaml:"min_separation_speed"`
	MaxMCIters                 int     `yaml:"max_mc_iters"`
	MaxLCPCGIters              int     `yaml:"max_lcpcg_iters"`
	MaxLCPCGSubiters           int     `yaml:"max_lcpcg_subiters"`
	MaxLCPCGSubitersFinal      int     `yaml:"max_lcpcg_subiters_final"`
	MaxLCPCGMicroiters         int     `yaml:"max_lcpcg_microiters"`
	MaxLCPCGMicroitersFinal    int     `yaml:"max_lcpcg_microiters_final"`
	MaxLCPCGFruitlessIters     int     `yaml:"max_lcpcg_fruitless_iters"`
	MinLCPCGImprovement        float64 `yaml:"min_lcpcg_improvement"`
	MaxWCG                     float64 `yaml:"max_w_cg"`
	MaxVCG                     float64 `yaml:"max_v_cg"`
	MaxVUnproj                 float64 `yaml:"max_v_unproj"`
	UsePreCG                   bool    `yaml:"use_pre_cg"`
	PreCGMaxContacts           int     `yaml:"pre_cg_max_contacts"`
}

func DefaultSettings() *Settings {
	return &Settings{
		AccuracyMC:                 DefaultAccuracyMC,
		AccuracyLCPCG:              DefaultAccuracyLCPCG,
		AccuracyLCPCGNoImprovement: DefaultAccuracyLCPCGNoImprove,
		MinSeparationSpeed:         DefaultMinSeparationSpeed,
		MaxMCIters:                 DefaultMaxMCIters,
		MaxLCPCGIters:              DefaultMaxLCPCGIters,
		MaxLCPCGSubiters:           DefaultMaxLCPCGSubiters,
		MaxLCPCGSubitersFinal:      DefaultMaxLCPCGSubitersFinal,
		MaxLCPCGMicroiters:         DefaultMaxLCPCGMicroiters,
		MaxLCPCGMicroitersFinal:    DefaultMaxLCPCGMicroitersFinal,
		MaxLCPCGFruitlessIters:     DefaultMaxLCPCGFruitlessIters,
		MinLCPCGImprovement:        DefaultMinLCPCGImprovement,
		MaxWCG:                     DefaultMaxWCG,
		MaxVCG:                     DefaultMaxVCG,
		MaxVUnproj:                 DefaultMaxVUnproj,
		UsePreCG:                   true,
		PreCGMaxContacts:           DefaultPreCGMaxContacts,
	}
}

// LoadSettings reads a yaml file over the defaults
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func SaveSettings(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings the solver cannot run with
func (s *Settings) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"accuracy_mc", s.AccuracyMC},
		{"accuracy_lcpcg", s.AccuracyLCPCG},
		{"min_separation_speed", s.MinSeparationSpeed},
		{"max_w_cg", s.MaxWCG},
		{"max_v_cg", s.MaxVCG},
		{"max_v_unproj", s.MaxVUnproj},
	}
	for _, p := range positive {
		if !(p.value > 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidSettings, p.name, p.value)
		}
	}

	nonNegative := []struct {
		name  string
		value int
	}{
		{"max_mc_iters", s.MaxMCIters},
		{"max_lcpcg_iters", s.MaxLCPCGIters},
		{"max_lcpcg_subiters", s.MaxLCPCGSubiters},
		{"max_lcpcg_subiters_final", s.MaxLCPCGSubitersFinal},
		{"max_lcpcg_microiters", s.MaxLCPCGMicroiters},
		{"max_lcpcg_microiters_final", s.MaxLCPCGMicroitersFinal},
		{"max_lcpcg_fruitless_iters", s.MaxLCPCGFruitlessIters},
		{"pre_cg_max_contacts", s.PreCGMaxContacts},
	}
	for _, p := range nonNegative {
		if p.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidSettings, p.name, p.value)
		}
	}

	if s.AccuracyLCPCGNoImprovement < 0 || s.MinLCPCGImprovement < 0 {
		return fmt.Errorf("%w: improvement thresholds must not be negative", ErrInvalidSettings)
	}

	return nil
}
