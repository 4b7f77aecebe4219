package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

const storageScopeName = "github.com/joescharf/tracker/store"

// InstrumentedStore wraps store.Store with OTel tracing and metrics.
// Every method gets a span and is counted in tracker.store.* metrics.
type InstrumentedStore struct {
	inner  store.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is.
func WrapStore(s store.Store) store.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s, Tracer(storageScopeName), Meter(storageScopeName))
}

func newInstrumentedStore(s store.Store, tracer trace.Tracer, m metric.Meter) *InstrumentedStore {
	ops, _ := m.Int64Counter("tracker.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("tracker.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("tracker.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	return &InstrumentedStore{inner: s, tracer: tracer, ops: ops, dur: dur, errs: errs}
}

// op starts a span and records a metric for the named store operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Projects ────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateProject(ctx context.Context, p *models.Project) error {
	ctx, span, t := s.op(ctx, "CreateProject")
	err := s.inner.CreateProject(ctx, p)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	attrs := []attribute.KeyValue{attribute.String("tracker.project.ref", id)}
	ctx, span, t := s.op(ctx, "GetProject", attrs...)
	v, err := s.inner.GetProject(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	ctx, span, t := s.op(ctx, "ListProjects")
	v, err := s.inner.ListProjects(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) AddProjectMember(ctx context.Context, projectID, userID string) error {
	attrs := []attribute.KeyValue{attribute.String("tracker.project.id", projectID)}
	ctx, span, t := s.op(ctx, "AddProjectMember", attrs...)
	err := s.inner.AddProjectMember(ctx, projectID, userID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	attrs := []attribute.KeyValue{attribute.String("tracker.project.id", projectID)}
	ctx, span, t := s.op(ctx, "IsProjectMember", attrs...)
	v, err := s.inner.IsProjectMember(ctx, projectID, userID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Users ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateUser(ctx context.Context, u *models.User) error {
	ctx, span, t := s.op(ctx, "CreateUser")
	err := s.inner.CreateUser(ctx, u)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, span, t := s.op(ctx, "GetUser")
	v, err := s.inner.GetUser(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span, t := s.op(ctx, "GetUserByEmail")
	v, err := s.inner.GetUserByEmail(ctx, email)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListUsers(ctx context.Context, query string) ([]*models.User, error) {
	ctx, span, t := s.op(ctx, "ListUsers")
	v, err := s.inner.ListUsers(ctx, query)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListProjectMembers(ctx context.Context, projectID string) ([]*models.User, error) {
	attrs := []attribute.KeyValue{attribute.String("tracker.project.id", projectID)}
	ctx, span, t := s.op(ctx, "ListProjectMembers", attrs...)
	v, err := s.inner.ListProjectMembers(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) SetSelectedProject(ctx context.Context, userID, projectID string) error {
	attrs := []attribute.KeyValue{attribute.String("tracker.project.id", projectID)}
	ctx, span, t := s.op(ctx, "SetSelectedProject", attrs...)
	err := s.inner.SetSelectedProject(ctx, userID, projectID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Issues ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	attrs := []attribute.KeyValue{
		attribute.String("tracker.issue.type", issue.Type.String()),
		attribute.String("tracker.issue.status", issue.Status.String()),
	}
	ctx, span, t := s.op(ctx, "CreateIssue", attrs...)
	err := s.inner.CreateIssue(ctx, issue)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("tracker.issue.id", id)}
	ctx, span, t := s.op(ctx, "GetIssue", attrs...)
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListIssues(ctx context.Context, filter store.IssueListFilter) ([]*models.Issue, error) {
	attrs := []attribute.KeyValue{attribute.Int("tracker.filter.statuses", len(filter.Statuses))}
	ctx, span, t := s.op(ctx, "ListIssues", attrs...)
	v, err := s.inner.ListIssues(ctx, filter)
	span.SetAttributes(attribute.Int("tracker.result.count", len(v)))
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	attrs := []attribute.KeyValue{
		attribute.String("tracker.issue.id", issue.ID),
		attribute.String("tracker.issue.status", issue.Status.String()),
	}
	ctx, span, t := s.op(ctx, "UpdateIssue", attrs...)
	err := s.inner.UpdateIssue(ctx, issue)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Attachments ─────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	attrs := []attribute.KeyValue{attribute.String("tracker.issue.id", a.IssueID)}
	ctx, span, t := s.op(ctx, "CreateAttachment", attrs...)
	err := s.inner.CreateAttachment(ctx, a)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	ctx, span, t := s.op(ctx, "GetAttachment")
	v, err := s.inner.GetAttachment(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListAttachments(ctx context.Context, issueID string) ([]*models.Attachment, error) {
	attrs := []attribute.KeyValue{attribute.String("tracker.issue.id", issueID)}
	ctx, span, t := s.op(ctx, "ListAttachments", attrs...)
	v, err := s.inner.ListAttachments(ctx, issueID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) DeleteAttachment(ctx context.Context, id string) error {
	ctx, span, t := s.op(ctx, "DeleteAttachment")
	err := s.inner.DeleteAttachment(ctx, id)
	s.done(ctx, span, t, err)
	return err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Migrate(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "Migrate")
	err := s.inner.Migrate(ctx)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
