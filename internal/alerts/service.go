package alerts

import (
	"context"
	"log/slog"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, a Alert) (int64, error)
	List(ctx context.Context, filter Filter) ([]Alert, error)
	Get(ctx context.Context, id int64) (*Alert, error)
	MarkRead(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// Service coordinates alert recording and queries. Alert rules live in the
// owning services, which call Record inside the same request flow instead of
// relying on database triggers.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record persists an alert. Recording failures are logged and swallowed so a
// broken alert pipeline never rolls back the stock or sale mutation that
// produced the event.
func (s *Service) Record(ctx context.Context, a Alert) {
	if a.Title == "" || a.Type == "" {
		return
	}
	if a.Severity == "" {
		a.Severity = SeverityMedium
	}
	if _, err := s.repo.Insert(ctx, a); err != nil && s.logger != nil {
		s.logger.Warn("record alert", slog.String("title", a.Title), slog.Any("error", err))
	}
}

// List returns alerts matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Alert, error) {
	return s.repo.List(ctx, filter)
}

// Get returns one alert.
func (s *Service) Get(ctx context.Context, id int64) (*Alert, error) {
	return s.repo.Get(ctx, id)
}

// MarkRead flags an alert as read.
func (s *Service) MarkRead(ctx context.Context, id int64) error {
	return s.repo.MarkRead(ctx, id)
}

// Delete removes an alert.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
