package learner

import (
	"fmt"

	"github.com/gaitlab/dmpo/mpo"
)

// Config holds the learner hyperparameters.
type Config struct {
	// BatchSize is the number of transitions per gradient step.
	BatchSize int

	// NumSamples is the number of target-policy action samples used
	// for the critic bootstrap mixture and the MPO E-step.
	NumSamples int

	// Target networks are hard-synchronized from the online networks
	// on these step periods. The two periods are independent.
	TargetPolicyUpdatePeriod int64
	TargetCriticUpdatePeriod int64

	// VMin, VMax and Atoms define the fixed support of the categorical
	// critic.
	VMin  float64
	VMax  float64
	Atoms int

	// Per-group optimizer learning rates.
	PolicyLearningRate float64
	CriticLearningRate float64
	DualsLearningRate  float64

	// ClipGradientNorm caps each group's global gradient norm before
	// the update. 0 disables clipping.
	ClipGradientNorm float64

	Duals mpo.DualsConfig
}

// DefaultConfig returns the default learner hyperparameters.
func DefaultConfig() Config {
	return Config{
		BatchSize:                256,
		NumSamples:               20,
		TargetPolicyUpdatePeriod: 101,
		TargetCriticUpdatePeriod: 107,
		VMin:                     -150.0,
		VMax:                     150.0,
		Atoms:                    51,
		PolicyLearningRate:       1e-4,
		CriticLearningRate:       1e-4,
		DualsLearningRate:        1e-2,
		ClipGradientNorm:         40.0,
		Duals:                    mpo.DefaultDualsConfig(),
	}
}

// Validate checks the configuration for fatal errors.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize)
	}
	if c.NumSamples < 1 {
		return fmt.Errorf("config: num samples must be positive "+
			"\n\thave(%v)", c.NumSamples)
	}
	if c.TargetPolicyUpdatePeriod < 1 || c.TargetCriticUpdatePeriod < 1 {
		return fmt.Errorf("config: target update periods must be positive "+
			"\n\thave(%v, %v)", c.TargetPolicyUpdatePeriod,
			c.TargetCriticUpdatePeriod)
	}
	if c.Atoms < 2 {
		return fmt.Errorf("config: need at least 2 support atoms "+
			"\n\thave(%v)", c.Atoms)
	}
	if c.VMax <= c.VMin {
		return fmt.Errorf("config: support bounds \n\thave([%v, %v])",
			c.VMin, c.VMax)
	}
	if c.PolicyLearningRate <= 0 || c.CriticLearningRate <= 0 ||
		c.DualsLearningRate <= 0 {
		return fmt.Errorf("config: learning rates must be positive")
	}
	return nil
}
