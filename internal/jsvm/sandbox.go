package jsvm

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// sandbox binds per-execution globals and interrupts the VM when ctx ends.
type sandbox struct {
	vm   *goja.Runtime
	logs []string
	stop chan struct{}
	done chan struct{}
	keys []string
}

func newSandbox(vm *goja.Runtime) *sandbox {
	return &sandbox{vm: vm, stop: make(chan struct{}), done: make(chan struct{})}
}

func (s *sandbox) setup(ctx context.Context, globals map[string]any) error {
	go func() {
		defer close(s.done)
		select {
		case <-ctx.Done():
			s.vm.Interrupt(ctx.Err())
		case <-s.stop:
		}
	}()

	console := s.vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		s.logs = append(s.logs, strings.Join(parts, " "))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := s.set("console", console); err != nil {
		return err
	}
	for k, v := range globals {
		if err := s.set(k, v); err != nil {
			return fmt.Errorf("bind %s: %w", k, err)
		}
	}
	return nil
}

func (s *sandbox) set(key string, v any) error {
	s.keys = append(s.keys, key)
	return s.vm.Set(key, v)
}

func (s *sandbox) cleanup() {
	close(s.stop)
	<-s.done
	global := s.vm.GlobalObject()
	for _, k := range s.keys {
		_ = global.Delete(k)
	}
}
