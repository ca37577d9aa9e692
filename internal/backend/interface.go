package backend

import (
	"context"

	"mgnregs/internal/core"
	"mgnregs/internal/services"
)

// Backend is the query surface every entry point serves.
type Backend interface {
	Query(ctx context.Context, q core.MonthlyQuery) (services.MonthlyResult, error)
	APIKeyConfigured() bool
	CacheSize() int
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and its cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// PublisherType selects where query events go.
type PublisherType string

const (
	NoPublisher   PublisherType = "none"
	AMQPPublisher PublisherType = "amqp"
)

// String implements fmt.Stringer
func (pt PublisherType) String() string {
	return string(pt)
}

// IsValid returns true if the publisher type is valid
func (pt PublisherType) IsValid() bool {
	switch pt {
	case NoPublisher, AMQPPublisher:
		return true
	default:
		return false
	}
}
