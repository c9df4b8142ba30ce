// Package hook runs user-supplied Tengo scripts around download events.
//
//go:generate mockgen -destination=./mocks/manager.go -package=mocks . Manager
package hook

// Type represents the type of hook.
type Type string

// Supported hook types.
const (
	PreDownload  Type = "pre-download"
	PostDownload Type = "post-download"
)

// Hook represents a hook script with its type and content.
type Hook struct {
	Type    Type
	Content string
}

// Context contains information passed to hooks.
type Context struct {
	ProductID   string
	ProductName string
	Path        string
	Vars        map[string]interface{}
}

// Manager defines the interface for managing hooks.
type Manager interface {
	// Execute runs the specified hook type with the given context
	Execute(hookType Type, ctx Context) error

	// AddHook adds a new hook
	AddHook(hook Hook) error

	// RemoveHook removes a hook of the specified type
	RemoveHook(hookType Type) error

	// HasHook checks if a hook of the specified type exists
	HasHook(hookType Type) bool
}
