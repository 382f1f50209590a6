package agent

import (
	"fmt"
	"time"
)

// ScalingPolicy bounds the instance count of one worker. Thresholds are CPU
// percentages compared against the average of the most recent samples.
type ScalingPolicy struct {
	MinInstances       int           `json:"minInstances" yaml:"min_instances"`
	MaxInstances       int           `json:"maxInstances" yaml:"max_instances"`
	TargetCPU          float64       `json:"targetCpuUtilization" yaml:"target_cpu"`
	ScaleUpThreshold   float64       `json:"scaleUpThreshold" yaml:"scale_up_threshold"`
	ScaleDownThreshold float64       `json:"scaleDownThreshold" yaml:"scale_down_threshold"`
	CooldownPeriod     time.Duration `json:"cooldownPeriod" yaml:"cooldown"`
}

// DefaultScalingPolicy returns the policy applied when none is configured.
func DefaultScalingPolicy() ScalingPolicy {
	return ScalingPolicy{
		MinInstances:       1,
		MaxInstances:       5,
		TargetCPU:          70,
		ScaleUpThreshold:   80,
		ScaleDownThreshold: 30,
		CooldownPeriod:     5 * time.Minute,
	}
}

func (p ScalingPolicy) Validate() error {
	switch {
	case p.MinInstances < 1:
		return fmt.Errorf("%w: minInstances must be at least 1", ErrInvalidPolicy)
	case p.MaxInstances < p.MinInstances:
		return fmt.Errorf("%w: maxInstances %d below minInstances %d", ErrInvalidPolicy, p.MaxInstances, p.MinInstances)
	case p.ScaleUpThreshold <= 0 || p.ScaleUpThreshold > 100:
		return fmt.Errorf("%w: scaleUpThreshold out of range", ErrInvalidPolicy)
	case p.ScaleDownThreshold < 0 || p.ScaleDownThreshold >= p.ScaleUpThreshold:
		return fmt.Errorf("%w: scaleDownThreshold must be below scaleUpThreshold", ErrInvalidPolicy)
	case p.CooldownPeriod < 0:
		return fmt.Errorf("%w: negative cooldown", ErrInvalidPolicy)
	}
	return nil
}
