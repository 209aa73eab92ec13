package jsvm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// Config holds runtime settings.
type Config struct {
	// Timeout bounds a single execution. Zero means 10s.
	Timeout  time.Duration
	PoolSize int
}

// Runtime executes scripts with a per-call timeout.
type Runtime struct {
	pool    *vmPool
	timeout time.Duration
	logger  *zerolog.Logger
	closed  atomic.Bool
}

// Result holds the outcome of a script.
type Result struct {
	Value any
	Logs  []string
}

// NewRuntime creates a runtime.
func NewRuntime(cfg Config, logger *zerolog.Logger) *Runtime {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Runtime{
		pool:    newVMPool(cfg.PoolSize),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Execute runs script as a function body. globals are visible as variables
// and the function's return value becomes Result.Value.
func (r *Runtime) Execute(ctx context.Context, name, script string, globals map[string]any) (*Result, error) {
	return r.ExecuteWithTimeout(ctx, name, script, globals, r.timeout)
}

// ExecuteWithTimeout is Execute with an explicit deadline.
func (r *Runtime) ExecuteWithTimeout(ctx context.Context, name, script string, globals map[string]any, timeout time.Duration) (*Result, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if timeout <= 0 {
		timeout = r.timeout
	}

	prog, err := goja.Compile(name, "(function(){\n"+script+"\n})()", true)
	if err != nil {
		return nil, &ScriptSyntaxError{Script: name, Message: err.Error()}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vm := r.pool.acquire()
	defer r.pool.release(vm)

	sb := newSandbox(vm)
	if err := sb.setup(execCtx, globals); err != nil {
		sb.cleanup()
		return nil, &ExecutionError{Script: name, Cause: err}
	}
	defer sb.cleanup()

	start := time.Now()
	val, err := vm.RunProgram(prog)
	if err != nil {
		return nil, r.wrapError(execCtx, name, err)
	}

	r.logger.Debug().Str("script", name).Dur("elapsed", time.Since(start)).Msg("script executed")
	return &Result{Value: exportValue(val), Logs: sb.logs}, nil
}

// Close rejects further executions.
func (r *Runtime) Close() error {
	r.closed.Store(true)
	r.pool.drain()
	return nil
}

func (r *Runtime) wrapError(ctx context.Context, name string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &ExecutionError{Script: name, Cause: ErrTimeout}
		}
		return &ExecutionError{Script: name, Cause: fmt.Errorf("interrupted: %v", interrupted.Value())}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ExecutionError{Script: name, Cause: fmt.Errorf("exception: %s", exception.String())}
	}

	return &ExecutionError{Script: name, Cause: err}
}

func exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
