package debt

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records debt lifecycle events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a debt-mutating operation.
type OperationLog struct {
	Operation string
	DebtID    string
	UserID    string
	Amount    string
	Reference string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}
