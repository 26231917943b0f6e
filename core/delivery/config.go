package delivery

import "time"

// Config holds delivery state machine settings.
// Designed for environment-based configuration using popular env parsing libraries.
type Config struct {
	LeaseDuration time.Duration `env:"DELIVERY_LEASE_DURATION" envDefault:"60s"`
}

// NewStateMachineFromConfig creates a StateMachine from configuration.
// Store must be provided. Additional options can override config values.
func NewStateMachineFromConfig(cfg Config, store Store, opts ...StateMachineOption) (*StateMachine, error) {
	allOpts := append([]StateMachineOption{
		WithLeaseDuration(cfg.LeaseDuration),
	}, opts...)

	return NewStateMachine(store, allOpts...)
}
