package subscriptions

import (
	"errors"
	"sync"
	"testing"

	"space-pulse/internal/events"
	"space-pulse/internal/logger"
	"space-pulse/internal/replica"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var silentLogger = logger.Discard()

type fakeSub struct {
	mu       sync.Mutex
	handlers map[events.Type]Handler
}

func (s *fakeSub) Bind(t events.Type, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[t] = h
}

func (s *fakeSub) Unbind(t events.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, t)
}

func (s *fakeSub) bound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// fakeTransport records calls in order and lets tests emit events.
type fakeTransport struct {
	calls []string
	subs  map[events.Channel]*fakeSub
	fail  map[events.Channel]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: map[events.Channel]*fakeSub{}, fail: map[events.Channel]error{}}
}

func (f *fakeTransport) Subscribe(ch events.Channel) (Subscription, error) {
	f.calls = append(f.calls, "sub "+string(ch))
	if err := f.fail[ch]; err != nil {
		return nil, err
	}
	sub := &fakeSub{handlers: map[events.Type]Handler{}}
	f.subs[ch] = sub
	return sub, nil
}

func (f *fakeTransport) Unsubscribe(ch events.Channel) error {
	f.calls = append(f.calls, "unsub "+string(ch))
	return nil
}

func (f *fakeTransport) emit(ch events.Channel, ev events.Event) bool {
	sub, ok := f.subs[ch]
	if !ok {
		return false
	}
	sub.mu.Lock()
	h, ok := sub.handlers[ev.Type()]
	sub.mu.Unlock()
	if !ok {
		return false
	}
	h(ev)
	return true
}

type recorder struct {
	got []replica.Inbound
}

func (r *recorder) sink(in replica.Inbound) { r.got = append(r.got, in) }

func TestController_StartSubscribesGlobalOnce(t *testing.T) {
	tr := newFakeTransport()
	rec := &recorder{}
	c := New(tr, rec.sink, silentLogger)

	c.Start()
	c.Start()

	assert.Equal(t, []string{"sub global"}, tr.calls)
	assert.Equal(t, len(events.GlobalTypes), tr.subs[events.Global].bound())

	require.True(t, tr.emit(events.Global, events.SpaceDeleted{SpaceID: "s1"}))
	require.Len(t, rec.got, 1)
	assert.Equal(t, events.Global, rec.got[0].Channel)
}

func TestController_SelectSwitchesInOrder(t *testing.T) {
	tr := newFakeTransport()
	rec := &recorder{}
	c := New(tr, rec.sink, silentLogger)
	c.Start()

	c.Select("a")
	state, id := c.State()
	assert.Equal(t, Subscribed, state)
	assert.Equal(t, "a", id)
	assert.Equal(t, len(events.SpaceTypes), tr.subs["space-a"].bound())

	c.Select("a")
	c.Select("b")

	assert.Equal(t, []string{"sub global", "sub space-a", "unsub space-a", "sub space-b"}, tr.calls)
	assert.Zero(t, tr.subs["space-a"].bound(), "old handlers must be unbound")
	assert.False(t, tr.emit("space-a", events.NoteDeleted{SpaceID: "a", NoteID: "n"}))

	require.True(t, tr.emit("space-b", events.NoteDeleted{SpaceID: "b", NoteID: "n"}))
	require.Len(t, rec.got, 1)
	assert.Equal(t, events.SpaceChannel("b"), rec.got[0].Channel)
}

func TestController_EveryHandlerKeepsItsChannel(t *testing.T) {
	tr := newFakeTransport()
	rec := &recorder{}
	c := New(tr, rec.sink, silentLogger)
	c.Select("x")

	for _, typ := range events.SpaceTypes {
		_, ok := tr.subs["space-x"].handlers[typ]
		assert.True(t, ok, "missing handler for %s", typ)
	}
	tr.emit("space-x", events.MessageNew{})
	tr.emit("space-x", events.SpaceInfoUpdated{SpaceID: "x"})
	for _, in := range rec.got {
		assert.Equal(t, events.SpaceChannel("x"), in.Channel)
	}
}

func TestController_ClearAndClose(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, func(replica.Inbound) {}, silentLogger)
	c.Start()
	c.Select("a")

	c.Clear()
	state, _ := c.State()
	assert.Equal(t, Idle, state)
	c.Clear()

	c.Select("b")
	c.Close()
	c.Close()
	c.Select("c")

	assert.Equal(t, []string{
		"sub global", "sub space-a", "unsub space-a",
		"sub space-b", "unsub space-b", "unsub global",
	}, tr.calls)
}

// MockTransport is a mock implementation of Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Subscribe(ch events.Channel) (Subscription, error) {
	args := m.Called(ch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Subscription), args.Error(1)
}

func (m *MockTransport) Unsubscribe(ch events.Channel) error {
	return m.Called(ch).Error(0)
}

func TestController_TransportErrorsAreNotFatal(t *testing.T) {
	tr := new(MockTransport)
	tr.On("Subscribe", events.SpaceChannel("a")).Return(nil, errors.New("socket closed")).Once()
	tr.On("Subscribe", events.SpaceChannel("a")).Return(&fakeSub{handlers: map[events.Type]Handler{}}, nil).Once()
	tr.On("Unsubscribe", events.SpaceChannel("a")).Return(errors.New("socket closed"))

	c := New(tr, func(replica.Inbound) {}, silentLogger)

	c.Select("a")
	state, _ := c.State()
	assert.Equal(t, Idle, state, "failed subscribe leaves the controller idle")

	c.Select("a")
	state, id := c.State()
	assert.Equal(t, Subscribed, state)
	assert.Equal(t, "a", id)

	assert.NotPanics(t, c.Clear)
	state, _ = c.State()
	assert.Equal(t, Idle, state)
	tr.AssertExpectations(t)
}
