package tools

import "time"

// ToolConfig controls how the invoker runs tool bodies.
type ToolConfig struct {
	ExecutionTimeout  time.Duration `json:"execution_timeout" yaml:"execution_timeout"`
	AllowedTools      []string      `json:"allowed_tools" yaml:"allowed_tools"`
	ValidateArguments bool          `json:"validate_arguments" yaml:"validate_arguments"`
}

func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		ExecutionTimeout:  30 * time.Second,
		AllowedTools:      nil, // nil means all tools are allowed
		ValidateArguments: true,
	}
}

func (tc ToolConfig) WithExecutionTimeout(timeout time.Duration) ToolConfig {
	tc.ExecutionTimeout = timeout
	return tc
}

func (tc ToolConfig) WithAllowedTools(patterns []string) ToolConfig {
	tc.AllowedTools = patterns
	return tc
}

// IsToolAllowed reports whether name matches one of the AllowedTools glob
// patterns. An empty list allows everything; a malformed pattern matches nothing.
func (tc ToolConfig) IsToolAllowed(name string) bool {
	if len(tc.AllowedTools) == 0 {
		return true
	}
	ok, err := matchAny(tc.AllowedTools, name)
	return err == nil && ok
}

func (tc ToolConfig) WithValidateArguments(validate bool) ToolConfig {
	tc.ValidateArguments = validate
	return tc
}
