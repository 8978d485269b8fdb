package oversight

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/internal/audit"
	"vitaex/internal/event"
	"vitaex/internal/eventlog"
	id "vitaex/pkg/domain"
	domainerrors "vitaex/pkg/domain-errors"
)

type capturedLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *capturedLog) Publish(_ context.Context, ev event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *capturedLog) Subscribe(context.Context, string, []string, eventlog.Handler) error {
	return nil
}
func (l *capturedLog) Health(context.Context) error { return nil }
func (l *capturedLog) Close() error                 { return nil }

func (l *capturedLog) published() []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Event(nil), l.events...)
}

func newTestService(t *testing.T, required int) (*Service, *capturedLog) {
	t.Helper()
	log := &capturedLog{}
	svc := NewService(NewInMemoryStore(), log, audit.NewPublisher(audit.NewInMemoryStore(), nil), required)
	return svc, log
}

func openReview(t *testing.T, svc *Service) id.CorrelationID {
	t.Helper()
	ev, err := event.New(event.TopicProtocolReviewRequested, "protocol.review", "subj-1", id.NewCorrelationID(), ReviewRequest{
		Stage:    "protocol_generate",
		Content:  "This protocol will treat insomnia.",
		Findings: []string{"treat"},
	})
	require.NoError(t, err)
	_, err = svc.Open(context.Background(), ev)
	require.NoError(t, err)
	return ev.CorrelationID
}

func TestService_OpenIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, 1)
	correlationID := openReview(t, svc)

	ev, err := event.New(event.TopicProtocolReviewRequested, "protocol.review", "subj-1", correlationID, ReviewRequest{Stage: "other"})
	require.NoError(t, err)
	review, err := svc.Open(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "protocol_generate", review.Stage)

	pending, err := svc.Pending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestService_SingleApprovalReleases(t *testing.T) {
	svc, log := newTestService(t, 1)
	correlationID := openReview(t, svc)

	review, err := svc.Decide(context.Background(), correlationID, "dr-chen", true, "looks fine")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, review.Status)

	published := log.published()
	require.Len(t, published, 1)
	assert.Equal(t, event.TopicProtocolReviewUpdated, published[0].Topic)
	assert.Equal(t, event.OutcomeSuccess, published[0].Outcome)
}

func TestService_MultipleApprovalsRequired(t *testing.T) {
	svc, log := newTestService(t, 2)
	correlationID := openReview(t, svc)

	review, err := svc.Decide(context.Background(), correlationID, "dr-chen", true, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, review.Status)
	assert.Empty(t, log.published(), "no decision event before the threshold")

	review, err = svc.Decide(context.Background(), correlationID, "dr-okafor", true, "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, review.Status)
	require.Len(t, log.published(), 1)
}

func TestService_RejectionIsImmediate(t *testing.T) {
	svc, log := newTestService(t, 2)
	correlationID := openReview(t, svc)

	review, err := svc.Decide(context.Background(), correlationID, "dr-chen", false, "medical claim")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, review.Status)

	published := log.published()
	require.Len(t, published, 1)
	assert.Equal(t, event.OutcomeFailed, published[0].Outcome)
	assert.Equal(t, string(StatusRejected), published[0].Reason)
}

func TestService_DuplicateReviewerRejected(t *testing.T) {
	svc, _ := newTestService(t, 2)
	correlationID := openReview(t, svc)

	_, err := svc.Decide(context.Background(), correlationID, "dr-chen", true, "")
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), correlationID, "dr-chen", true, "")
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeConflict, domainerrors.CodeOf(err))
}

func TestService_DecideOnClosedReview(t *testing.T) {
	svc, _ := newTestService(t, 1)
	correlationID := openReview(t, svc)

	_, err := svc.Decide(context.Background(), correlationID, "dr-chen", true, "")
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), correlationID, "dr-okafor", false, "")
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeInvalidState, domainerrors.CodeOf(err))
}

func TestService_DecideUnknownReview(t *testing.T) {
	svc, _ := newTestService(t, 1)

	_, err := svc.Decide(context.Background(), id.NewCorrelationID(), "dr-chen", true, "")
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeNotFound, domainerrors.CodeOf(err))
}
