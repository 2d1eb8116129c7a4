package attendee

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) Lookup(ctx context.Context, email string, user model.User) (Result, error) {
	args := m.Called(ctx, email, user)
	return args.Get(0).(Result), args.Error(1)
}

var owner = model.User{ID: "u1", Email: "owner@example.com"}

func TestService_ValidateEmail_CachesLookups(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("Lookup", mock.Anything, "ana@example.com", owner).
		Return(Result{IsValid: true, Exists: true, FirstName: "Ana"}, nil).Once()

	svc := NewService(dir, NewCache[Result](10), time.Minute, logger.NewNop())
	ctx := context.Background()

	r, err := svc.ValidateEmail(ctx, " Ana@Example.com ", owner)
	require.NoError(t, err)
	assert.True(t, r.IsValid)
	assert.Equal(t, "ana@example.com", r.Email)

	r, err = svc.ValidateEmail(ctx, "ana@example.com", owner)
	require.NoError(t, err)
	assert.Equal(t, "Ana", r.FirstName)

	dir.AssertExpectations(t)
	stats := svc.GetStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.TotalValidations)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestService_ValidateEmail_MalformedSkipsDirectory(t *testing.T) {
	dir := &mockDirectory{}
	svc := NewService(dir, NewCache[Result](10), time.Minute, logger.NewNop())

	r, err := svc.ValidateEmail(context.Background(), "not-an-email", owner)
	require.NoError(t, err)
	assert.False(t, r.IsValid)
	dir.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ValidateEmail_UnknownPersonIsInvalid(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("Lookup", mock.Anything, "ghost@example.com", owner).Return(Result{IsValid: true, Exists: false}, nil)
	svc := NewService(dir, NewCache[Result](10), time.Minute, logger.NewNop())

	r, err := svc.ValidateEmail(context.Background(), "ghost@example.com", owner)
	require.NoError(t, err)
	assert.False(t, r.IsValid)
}

func TestService_ValidateEmail_ErrorsAreNotCached(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("Lookup", mock.Anything, "bob@example.com", owner).Return(Result{}, errors.New("directory down")).Once()
	dir.On("Lookup", mock.Anything, "bob@example.com", owner).Return(Result{IsValid: true, Exists: true}, nil).Once()
	svc := NewService(dir, NewCache[Result](10), time.Minute, logger.NewNop())
	ctx := context.Background()

	_, err := svc.ValidateEmail(ctx, "bob@example.com", owner)
	require.Error(t, err)

	r, err := svc.ValidateEmail(ctx, "bob@example.com", owner)
	require.NoError(t, err)
	assert.True(t, r.IsValid)
}

// slowDirectory answers after a delay that shrinks with position, so later
// addresses finish first.
type slowDirectory struct {
	delays   map[string]time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	calls    []string
}

func (d *slowDirectory) Lookup(ctx context.Context, email string, _ model.User) (Result, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	d.mu.Lock()
	d.calls = append(d.calls, email)
	d.mu.Unlock()

	time.Sleep(d.delays[email])
	return Result{IsValid: true, Exists: true}, nil
}

func TestService_ValidateBatch_OrderAndBound(t *testing.T) {
	emails := []string{
		"a@x.io", "b@x.io", "A@x.io", "c@x.io", "d@x.io", "e@x.io",
		"f@x.io", "g@x.io", "b@x.io", "h@x.io", "i@x.io", "j@x.io", "k@x.io",
	}
	want := Dedupe(emails)
	require.Len(t, want, 11)

	dir := &slowDirectory{delays: make(map[string]time.Duration)}
	for i, e := range want {
		dir.delays[e] = time.Duration(len(want)-i) * time.Millisecond
	}
	svc := NewService(dir, NewCache[Result](100), time.Minute, logger.NewNop())

	results, err := svc.ValidateBatch(context.Background(), emails, owner)
	require.NoError(t, err)
	require.Len(t, results, len(want))
	for i, r := range results {
		assert.Equal(t, want[i], r.Email)
		assert.True(t, r.IsValid)
	}
	assert.LessOrEqual(t, int(dir.peak.Load()), BatchSize)
	assert.Len(t, dir.calls, len(want), "duplicates are looked up once")
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, Dedupe([]string{" A@x.io", "", "b@x.io", "a@X.io"}))
}

func TestSplitName(t *testing.T) {
	first, last := SplitName("ana.maria.lopez@example.com")
	assert.Equal(t, "Ana", first)
	assert.Equal(t, "Lopez", last)

	first, last = SplitName("bob@example.com")
	assert.Equal(t, "Bob", first)
	assert.Empty(t, last)
}
