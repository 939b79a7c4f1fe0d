package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/alfred/pkg/turns"
)

// ErrorKind classifies tool failures.
type ErrorKind string

const (
	ErrorNotFound   ErrorKind = "not_found"
	ErrorExecution  ErrorKind = "execution"
	ErrorValidation ErrorKind = "validation"
	ErrorTimeout    ErrorKind = "timeout"
)

// ToolError is a tool failure. Its message is what the model sees.
type ToolError struct {
	ToolName string
	Kind     ErrorKind
	Cause    error
}

func (e *ToolError) Error() string {
	if e.Kind == ErrorNotFound {
		return fmt.Sprintf("Tool '%s' not found.", e.ToolName)
	}
	return fmt.Sprintf("Error executing tool %s: %v", e.ToolName, e.Cause)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// Result is the outcome of one tool invocation: Output on success, Err on failure.
type Result struct {
	ToolName string
	Output   string
	Err      *ToolError
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Text is the string fed back to the model.
func (r Result) Text() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Output
}

// Turn converts the result into the tool result turn answering req.
func (r Result) Turn(req turns.ToolRequest) turns.Turn {
	return turns.NewToolResultTurn(req, r.Text(), !r.OK())
}

// Invoker resolves tool requests against a registry and runs them. It never
// returns an error: every failure becomes an error Result. Tools outside the
// configured allow-list are reported as not found.
type Invoker struct {
	config ToolConfig
}

func NewInvoker(cfg ToolConfig) *Invoker {
	return &Invoker{config: cfg}
}

// Invoke runs req and returns the tool result turn to append.
func (i *Invoker) Invoke(ctx context.Context, req turns.ToolRequest, reg *Registry) turns.Turn {
	return i.Execute(ctx, req, reg).Turn(req)
}

// Execute runs req and returns the explicit result.
func (i *Invoker) Execute(ctx context.Context, req turns.ToolRequest, reg *Registry) Result {
	desc, ok := reg.Resolve(req.Name)
	if ok && !i.config.IsToolAllowed(req.Name) {
		log.Debug().Str("tool", req.Name).Msg("tools: requested tool is not allowed")
		ok = false
	}
	if !ok {
		log.Debug().Str("tool", req.Name).Msg("tools: requested tool not found")
		return Result{
			ToolName: req.Name,
			Err:      &ToolError{ToolName: req.Name, Kind: ErrorNotFound},
		}
	}

	in := NormalizeArguments(req.Arguments)
	if i.config.ValidateArguments && in.IsKeyword() {
		if err := ValidateArguments(desc, in.Keyword); err != nil {
			return Result{
				ToolName: desc.Name,
				Err:      &ToolError{ToolName: desc.Name, Kind: ErrorValidation, Cause: err},
			}
		}
	}

	// Tool calls are never abandoned half-way: cancellation of the caller is
	// observed between loop steps, the timeout bounds the call itself.
	runCtx := context.WithoutCancel(ctx)
	if i.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, i.config.ExecutionTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := call(runCtx, desc, in)
	res := Result{ToolName: desc.Name, Output: out, Duration: time.Since(start)}
	if err != nil {
		kind := ErrorExecution
		if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() != nil {
			kind = ErrorTimeout
		}
		res.Output = ""
		res.Err = &ToolError{ToolName: desc.Name, Kind: kind, Cause: err}
	}

	log.Debug().
		Str("tool", desc.Name).
		Bool("keyword", in.IsKeyword()).
		Dur("duration", res.Duration).
		Bool("ok", res.OK()).
		Msg("tools: executed tool")

	return res
}

func call(ctx context.Context, desc ToolDescriptor, in Input) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return desc.Func(ctx, in)
}
