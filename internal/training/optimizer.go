package training

import "math"

// AdamConfig holds Adam hyperparameters.
type AdamConfig struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
}

// DefaultAdamConfig returns the standard Adam configuration used by the
// reference training run.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Adam is a CPU Adam optimizer for one parameter tensor. It keeps first and
// second moment estimates and applies bias correction on every step.
type Adam struct {
	cfg      AdamConfig
	momentum []float32
	variance []float32
	step     uint64
}

// NewAdam creates an optimizer for a parameter tensor of the given size.
// Moment buffers start at zero.
func NewAdam(cfg AdamConfig, size int) *Adam {
	return &Adam{
		cfg:      cfg,
		momentum: make([]float32, size),
		variance: make([]float32, size),
	}
}

// Step applies one Adam update to params in place. grads must have the same
// length as the buffers given to NewAdam.
func (a *Adam) Step(params, grads []float32) {
	a.step++
	b1c := 1 - float32(math.Pow(float64(a.cfg.Beta1), float64(a.step)))
	b2c := 1 - float32(math.Pow(float64(a.cfg.Beta2), float64(a.step)))

	for i, g := range grads {
		a.momentum[i] = a.cfg.Beta1*a.momentum[i] + (1-a.cfg.Beta1)*g
		a.variance[i] = a.cfg.Beta2*a.variance[i] + (1-a.cfg.Beta2)*g*g

		mHat := a.momentum[i] / b1c
		vHat := a.variance[i] / b2c

		params[i] -= a.cfg.LearningRate * mHat / (float32(math.Sqrt(float64(vHat))) + a.cfg.Epsilon)
	}
}
