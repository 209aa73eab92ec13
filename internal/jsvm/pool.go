package jsvm

import (
	"github.com/dop251/goja"
)

// vmPool keeps idle VMs for reuse. Callers beyond the pool size get fresh VMs.
type vmPool struct {
	idle chan *goja.Runtime
}

func newVMPool(size int) *vmPool {
	if size <= 0 {
		size = 4
	}
	return &vmPool{idle: make(chan *goja.Runtime, size)}
}

func (p *vmPool) acquire() *goja.Runtime {
	select {
	case vm := <-p.idle:
		return vm
	default:
		vm := goja.New()
		vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
		return vm
	}
}

func (p *vmPool) release(vm *goja.Runtime) {
	vm.ClearInterrupt()
	select {
	case p.idle <- vm:
	default:
	}
}

func (p *vmPool) drain() {
	for {
		select {
		case <-p.idle:
		default:
			return
		}
	}
}
