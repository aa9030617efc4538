package provider

import (
	"context"
	"sync"
	"time"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// Mock is a deterministic in-memory provider used by tests and local runs.
type Mock struct {
	*Base
	capability Capability
	capOnce    sync.Once
	capFn      func() Capability

	mu      sync.Mutex
	points  []models.DataPoint
	failErr error
	healthy bool
	calls   int
}

// NewMock builds a mock with the given capability and canned points.
func NewMock(name string, cap Capability, points []models.DataPoint) *Mock {
	return &Mock{
		Base:    NewBase(name, AuthConfig{Type: AuthNone}, DefaultRateLimit()),
		capFn:   func() Capability { return cap },
		points:  points,
		healthy: true,
	}
}

// Fail makes every subsequent GetData return err (nil restores success).
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// SetHealthy controls the health-check outcome.
func (m *Mock) SetHealthy(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = ok
}

// Calls reports how many GetData invocations reached this provider.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Capability is computed once and cached, like real adapters.
func (m *Mock) Capability() Capability {
	m.capOnce.Do(func() { m.capability = m.capFn() })
	return m.capability
}

func (m *Mock) GetData(ctx context.Context, q models.DataQuery) (*models.DataResponse, error) {
	release, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	m.mu.Lock()
	m.calls++
	failErr := m.failErr
	points := m.points
	m.mu.Unlock()

	if failErr != nil {
		return nil, errs.Provider(m.Name(), failErr.Error(), nil).WithCause(failErr)
	}
	out := make([]models.DataPoint, len(points))
	copy(out, points)
	return &models.DataResponse{
		Points:    out,
		Source:    models.ResponseSource{Name: m.Name()},
		FetchedAt: time.Now(),
	}, nil
}

func (m *Mock) StreamData(ctx context.Context, q models.DataQuery) (<-chan models.DataPoint, error) {
	return nil, ErrStreamingUnsupported(m.Name())
}

func (m *Mock) HealthCheck(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}
