package provider

import (
	"context"
	"sync"
	"time"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// SeriesSource yields previously persisted points for a query. The
// embedded store's point repository satisfies it.
type SeriesSource interface {
	Query(ctx context.Context, q models.DataQuery) ([]models.DataPoint, error)
}

// Local serves queries from an embedded series source. It is the
// zero-dependency native provider a standalone deployment registers so
// fetches work without any upstream configured.
type Local struct {
	*Base
	capOnce    sync.Once
	capability Capability
	capFn      func() Capability
	src        SeriesSource
}

func NewLocal(name string, cap Capability, src SeriesSource) *Local {
	return &Local{
		Base:  NewBase(name, AuthConfig{Type: AuthNone}, DefaultRateLimit()),
		capFn: func() Capability { return cap },
		src:   src,
	}
}

func (l *Local) Capability() Capability {
	l.capOnce.Do(func() { l.capability = l.capFn() })
	return l.capability
}

func (l *Local) GetData(ctx context.Context, q models.DataQuery) (*models.DataResponse, error) {
	release, err := l.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	points, err := l.src.Query(ctx, q)
	if err != nil {
		return nil, errs.Provider(l.Name(), "embedded series query failed", nil).WithCause(err)
	}
	return &models.DataResponse{
		Points:    points,
		Source:    models.ResponseSource{Name: l.Name(), Endpoint: "embedded"},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (l *Local) StreamData(ctx context.Context, q models.DataQuery) (<-chan models.DataPoint, error) {
	return nil, ErrStreamingUnsupported(l.Name())
}

func (l *Local) HealthCheck(ctx context.Context) bool {
	return l.src != nil
}
