package toolloop

import "github.com/go-go-golems/alfred/pkg/turns"

// DefaultMaxSteps is the step budget used by callers that do not pick one.
const DefaultMaxSteps = 10

// LoopConfig configures the agent loop.
type LoopConfig struct {
	// WindowSize is the number of trailing turns sent to the gateway per step.
	WindowSize int `json:"window_size" yaml:"window_size"`
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		WindowSize: turns.DefaultWindowSize,
	}
}

func (c LoopConfig) WithWindowSize(n int) LoopConfig {
	c.WindowSize = n
	return c
}
