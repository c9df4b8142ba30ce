package hook

import (
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/glorpus-work/cdse/pkg/errors"
)

// DefaultManager is the default Tengo-backed implementation of Manager.
type DefaultManager struct {
	scripts map[Type]string
	mutex   sync.RWMutex
}

// NewManager creates a new hook manager.
func NewManager() *DefaultManager {
	return &DefaultManager{
		scripts: make(map[Type]string),
	}
}

// Execute runs the specified hook type with the given context.
func (m *DefaultManager) Execute(hookType Type, ctx Context) error {
	m.mutex.RLock()
	script, exists := m.scripts[hookType]
	m.mutex.RUnlock()
	if !exists {
		return nil // No hook registered for this type
	}

	scriptInstance := tengo.NewScript([]byte(script))
	scriptInstance.SetImports(stdlib.GetModuleMap("fmt", "os", "strings", "times"))

	_ = scriptInstance.Add("productId", ctx.ProductID)
	_ = scriptInstance.Add("productName", ctx.ProductName)
	_ = scriptInstance.Add("path", ctx.Path)
	for k, v := range ctx.Vars {
		_ = scriptInstance.Add(k, v)
	}

	compiled, err := scriptInstance.Run()
	if err != nil {
		return errors.Wrapf(ErrHookExecution, "%s: %v", hookType, err)
	}

	// A script signals failure by assigning to "err".
	if errVar := compiled.Get("err"); errVar != nil {
		switch v := errVar.Value().(type) {
		case error:
			return errors.Wrap(ErrHookScript, v.Error())
		case string:
			if v != "" {
				return errors.Wrap(ErrHookScript, v)
			}
		}
	}
	return nil
}

// AddHook adds a new hook.
func (m *DefaultManager) AddHook(hook Hook) error {
	if hook.Type == "" {
		return ErrHookTypeEmpty
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.scripts[hook.Type] = hook.Content
	return nil
}

// RemoveHook removes a hook of the specified type.
func (m *DefaultManager) RemoveHook(hookType Type) error {
	if hookType == "" {
		return ErrHookTypeEmpty
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.scripts, hookType)
	return nil
}

// HasHook checks if a hook of the specified type exists.
func (m *DefaultManager) HasHook(hookType Type) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.scripts[hookType]
	return ok
}
