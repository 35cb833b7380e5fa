// Package hooks implements the named extension points spec §4.8 "Hooks"
// calls for, run in a fixed sequence around the task lifecycle.
package hooks

import (
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/task"
)

// Name is one of the fixed hook points of spec §4.8.
type Name string

const (
	PreStart               Name = "pre_start"
	Start                  Name = "start"
	PrePrepareDebuginfo    Name = "pre_prepare_debuginfo"
	PostPrepareDebuginfo   Name = "post_prepare_debuginfo"
	PrePrepareEnvironment  Name = "pre_prepare_environment"
	PostPrepareEnvironment Name = "post_prepare_environment"
	PreRetrace             Name = "pre_retrace"
	PostRetrace            Name = "post_retrace"
	Success                Name = "success"
	Fail                   Name = "fail"
	PreCleanTask           Name = "pre_clean_task"
	PostCleanTask          Name = "post_clean_task"
	PreRemoveTask          Name = "pre_remove_task"
	PostRemoveTask         Name = "post_remove_task"
)

// Func is one hook implementation, receiving the task it runs against.
type Func func(t *task.Task) error

// Registry dispatches named hooks. The zero value has no hooks
// registered and Run is then a no-op for every name.
type Registry struct {
	hooks map[Name][]Func
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[Name][]Func)}
}

// Register appends fn to the list invoked for name.
func (r *Registry) Register(name Name, fn Func) {
	r.hooks[name] = append(r.hooks[name], fn)
}

// Run invokes every hook registered for name against t, in registration
// order. A hook failure is logged and does not stop the remaining hooks
// or mask the caller's own pipeline result (spec §4.8 "Hook failures
// must not mask pipeline failures").
func Run(r *Registry, l rlog.Logger, name Name, t *task.Task) {
	if r == nil {
		return
	}

	for _, fn := range r.hooks[name] {
		if err := fn(t); err != nil {
			l.Warnf("hook %s failed: %v", name, err)
		}
	}
}
