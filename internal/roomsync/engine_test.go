package roomsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/five82/roomboard/internal/rooms"
	"github.com/five82/roomboard/internal/state"
)

// mockSource is a testify mock of rooms.Source.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchRooms(ctx context.Context) ([]rooms.Room, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]rooms.Room)
	return list, args.Error(1)
}

func (m *mockSource) UpdateStatus(ctx context.Context, id string, status rooms.Status) ([]byte, error) {
	args := m.Called(ctx, id, status)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

// gatedSource holds UpdateStatus until release is closed.
type gatedSource struct {
	mu      sync.Mutex
	rooms   []rooms.Room
	fetches int
	release chan struct{}
	body    []byte
	err     error
}

func (g *gatedSource) FetchRooms(context.Context) ([]rooms.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	return append([]rooms.Room(nil), g.rooms...), nil
}

func (g *gatedSource) UpdateStatus(ctx context.Context, _ string, _ rooms.Status) ([]byte, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.body, g.err
}

func (g *gatedSource) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

func startEngine(t *testing.T, source rooms.Source, log *zap.Logger) (*Engine, *state.Registry) {
	t.Helper()
	reg := &state.Registry{}
	eng := New(reg, source, log, Options{RequestTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-eng.Done()
	})
	return eng, reg
}

func seedRooms() []rooms.Room {
	return []rooms.Room{
		{ID: "1", Name: "Kiyomizu 201", Address: "Higashiyama", Status: rooms.StatusAvailable},
		{ID: "2", Name: "Hiei Heights 503", Address: "Sakyo", Status: rooms.StatusGuiding},
	}
}

func waitCommand(t *testing.T, cmd *Command) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := cmd.Wait(ctx)
	require.NotEqual(t, OutcomePending, outcome, "command did not finish: %v", err)
	return outcome, err
}

func TestLoad_ReplacesRegistry(t *testing.T) {
	src := &mockSource{}
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil).Once()
	eng, reg := startEngine(t, src, nil)

	require.NoError(t, eng.Load(context.Background()))
	assert.Equal(t, seedRooms(), reg.Rooms())
	assert.True(t, reg.Snapshot().Loaded)
	src.AssertExpectations(t)
}

func TestLoad_FailureLeavesRegistryAndRecordsError(t *testing.T) {
	src := &mockSource{}
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil).Once()
	src.On("FetchRooms", mock.Anything).Return(nil, errors.New("connection refused")).Once()
	src.On("FetchRooms", mock.Anything).Return([]rooms.Room{{ID: "x", Status: "SOLD"}}, nil).Once()
	eng, reg := startEngine(t, src, nil)

	require.NoError(t, eng.Load(context.Background()))

	err := eng.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, seedRooms(), reg.Rooms())
	assert.Equal(t, 1, reg.Snapshot().ConsecutiveFailures)

	err = eng.Load(context.Background())
	require.ErrorIs(t, err, rooms.ErrInvalidSnapshot)
	assert.Equal(t, seedRooms(), reg.Rooms())
	assert.True(t, reg.Snapshot().IsOffline())
}

func TestLoad_AfterStopReturnsErrStopped(t *testing.T) {
	src := &mockSource{}
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil)
	reg := &state.Registry{}
	eng := New(reg, src, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()
	cancel()
	<-eng.Done()

	err := eng.Load(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, reg.Rooms())
}

func TestRun_OnlyOnce(t *testing.T) {
	eng, _ := startEngine(t, &mockSource{}, nil)
	// Give the first Run a chance to start.
	require.NoError(t, eng.do(func() {}))
	assert.Error(t, eng.Run(context.Background()))
}

func TestHandleFrame_StatusPatchScenario(t *testing.T) {
	eng, reg := startEngine(t, &mockSource{}, nil)
	require.NoError(t, eng.HandleFrame([]byte(`[{"id":"1","name":"n","address":"a","status":"AVAILABLE"}]`)))

	require.NoError(t, eng.HandleFrame([]byte(`{"type":"ROOM_STATUS_UPDATE","room_id":"1","new_status":"GUIDING"}`)))

	got := reg.Rooms()
	require.Len(t, got, 1)
	assert.Equal(t, rooms.Room{ID: "1", Name: "n", Address: "a", Status: rooms.StatusGuiding}, got[0])
}

func TestHandleFrame_UnknownIDIsNoop(t *testing.T) {
	eng, reg := startEngine(t, &mockSource{}, nil)
	require.NoError(t, eng.Apply(rooms.FullReplace{Rooms: seedRooms()}))
	before := reg.Snapshot()

	require.NoError(t, eng.HandleFrame([]byte(`{"type":"ROOM_STATUS_UPDATE","room_id":"9","new_status":"GUIDING"}`)))

	after := reg.Snapshot()
	assert.Equal(t, before.Rooms, after.Rooms)
	assert.Equal(t, before.Version, after.Version)
}

func TestHandleFrame_DiscardsAndReports(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	eng, reg := startEngine(t, &mockSource{}, zap.New(core))
	require.NoError(t, eng.Apply(rooms.FullReplace{Rooms: seedRooms()}))
	before := reg.Snapshot()

	frames := []string{
		`{"type":"ROOM_STATUS_UPDATE"`,
		`{"type":"SOMETHING_ELSE","room_id":"1","new_status":"GUIDING"}`,
		`{"type":"ROOM_STATUS_UPDATE","room_id":"1"}`,
		`[{"id":"1"}]`,
		`"text"`,
	}
	for _, frame := range frames {
		err := eng.HandleFrame([]byte(frame))
		require.Error(t, err, "frame %s", frame)
	}

	after := reg.Snapshot()
	assert.Equal(t, before.Rooms, after.Rooms)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, len(frames), logs.FilterMessage("discarding stream frame").Len())

	// The engine keeps working after discards.
	require.NoError(t, eng.HandleFrame([]byte(`{"type":"ROOM_STATUS_UPDATE","room_id":"2","new_status":"CONTRACTED"}`)))
	assert.Equal(t, rooms.StatusContracted, reg.Rooms()[1].Status)
}

func TestApply_ReplayMatchesFold(t *testing.T) {
	eng, reg := startEngine(t, &mockSource{}, nil)

	notes := []rooms.Notification{
		rooms.StatusPatch{RoomID: "1", NewStatus: rooms.StatusGuiding},
		rooms.FullReplace{Rooms: seedRooms()},
		rooms.StatusPatch{RoomID: "2", NewStatus: rooms.StatusContracted},
		rooms.StatusPatch{RoomID: "1", NewStatus: rooms.StatusContracted},
		rooms.StatusPatch{RoomID: "1", NewStatus: rooms.StatusGuiding},
		rooms.FullReplace{Rooms: []rooms.Room{seedRooms()[1], seedRooms()[0]}},
		rooms.StatusPatch{RoomID: "2", NewStatus: rooms.StatusAvailable},
		rooms.StatusPatch{RoomID: "3", NewStatus: rooms.StatusAvailable},
	}

	var model []rooms.Room
	for _, note := range notes {
		require.NoError(t, eng.Apply(note))
		switch n := note.(type) {
		case rooms.FullReplace:
			model = append([]rooms.Room(nil), n.Rooms...)
		case rooms.StatusPatch:
			for i := range model {
				if model[i].ID == n.RoomID {
					model[i].Status = n.NewStatus
				}
			}
		}
		assert.Equal(t, model, reg.Rooms())
	}

	want := []rooms.Room{seedRooms()[1], seedRooms()[0]}
	want[0].Status = rooms.StatusAvailable
	assert.Equal(t, want, reg.Rooms())
}

func TestSetStatus_OptimisticBeforeResponse(t *testing.T) {
	src := &gatedSource{
		rooms:   seedRooms(),
		release: make(chan struct{}),
		body:    []byte(`{"message":"ok","room":{"id":"1","status":"CONTRACTED"}}`),
	}
	eng, reg := startEngine(t, src, nil)
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "1", rooms.StatusContracted)
	require.NoError(t, err)

	// Response is still held: the optimistic value must already be visible.
	assert.Equal(t, rooms.StatusContracted, reg.Rooms()[0].Status)
	select {
	case <-cmd.Done():
		t.Fatal("command finished before the response was released")
	default:
	}
	assert.Empty(t, cmd.Confirmed())

	close(src.release)
	outcome, err := waitCommand(t, cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, outcome)
	assert.Equal(t, rooms.StatusContracted, cmd.Confirmed())
	assert.Equal(t, rooms.StatusContracted, reg.Rooms()[0].Status)
}

func TestSetStatus_ReconcilesToServerValue(t *testing.T) {
	src := &mockSource{}
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil).Once()
	src.On("UpdateStatus", mock.Anything, "1", rooms.StatusContracted).
		Return([]byte(`{"room":{"id":"1","name":"n","address":"a","status":"GUIDING"}}`), nil).Once()
	eng, reg := startEngine(t, src, nil)
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "1", rooms.StatusContracted)
	require.NoError(t, err)
	outcome, err := waitCommand(t, cmd)
	require.NoError(t, err)

	assert.Equal(t, OutcomeReconciled, outcome)
	assert.Equal(t, rooms.StatusGuiding, cmd.Confirmed())
	assert.Equal(t, rooms.StatusGuiding, reg.Rooms()[0].Status)
	// Name and address come from the snapshot, not the command response.
	assert.Equal(t, "Kiyomizu 201", reg.Rooms()[0].Name)
	src.AssertExpectations(t)
}

func TestSetStatus_AmbiguousResponseReloads(t *testing.T) {
	reloaded := []rooms.Room{
		{ID: "2", Name: "Hiei Heights 503", Address: "Sakyo", Status: rooms.StatusAvailable},
		{ID: "1", Name: "Kiyomizu 201", Address: "Higashiyama", Status: rooms.StatusGuiding},
		{ID: "3", Name: "Maison Kyoto 101", Address: "Shimogyo", Status: rooms.StatusContracted},
	}
	src := &mockSource{}
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil).Once()
	src.On("UpdateStatus", mock.Anything, "1", rooms.StatusContracted).Return([]byte(`{}`), nil).Once()
	src.On("FetchRooms", mock.Anything).Return(reloaded, nil).Once()
	eng, reg := startEngine(t, src, nil)
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "1", rooms.StatusContracted)
	require.NoError(t, err)
	outcome, err := waitCommand(t, cmd)

	assert.Equal(t, OutcomeResynced, outcome)
	assert.ErrorIs(t, err, ErrAmbiguousResult)
	assert.Equal(t, reloaded, reg.Rooms())
	src.AssertExpectations(t)
}

func TestSetStatus_TransportFailureReloads(t *testing.T) {
	src := &mockSource{}
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil).Twice()
	src.On("UpdateStatus", mock.Anything, "2", rooms.StatusAvailable).Return(nil, errors.New("api /rooms/{id}/status returned status 500")).Once()
	eng, reg := startEngine(t, src, nil)
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "2", rooms.StatusAvailable)
	require.NoError(t, err)
	outcome, err := waitCommand(t, cmd)

	assert.Equal(t, OutcomeResynced, outcome)
	assert.Error(t, err)
	// The optimistic value is replaced by the authoritative reload.
	assert.Equal(t, seedRooms(), reg.Rooms())
	src.AssertExpectations(t)
}

func TestSetStatus_ReloadFailure(t *testing.T) {
	src := &mockSource{}
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil).Once()
	src.On("UpdateStatus", mock.Anything, "1", rooms.StatusGuiding).Return([]byte(`not json`), nil).Once()
	src.On("FetchRooms", mock.Anything).Return(nil, errors.New("down")).Once()
	eng, reg := startEngine(t, src, nil)
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "1", rooms.StatusGuiding)
	require.NoError(t, err)
	outcome, err := waitCommand(t, cmd)

	assert.Equal(t, OutcomeResyncFailed, outcome)
	assert.ErrorIs(t, err, ErrAmbiguousResult)
	assert.Equal(t, 1, reg.Snapshot().ConsecutiveFailures)
	// The registry keeps the optimistic value until a reload succeeds.
	assert.Equal(t, rooms.StatusGuiding, reg.Rooms()[0].Status)
}

func TestSetStatus_TimeoutReloads(t *testing.T) {
	src := &gatedSource{rooms: seedRooms(), release: make(chan struct{})}
	reg := &state.Registry{}
	eng := New(reg, src, nil, Options{RequestTimeout: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = eng.Run(ctx) }()
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "1", rooms.StatusContracted)
	require.NoError(t, err)
	outcome, err := waitCommand(t, cmd)

	assert.Equal(t, OutcomeResynced, outcome)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, src.fetchCount())
	assert.Equal(t, rooms.StatusAvailable, reg.Rooms()[0].Status)
}

func TestSetStatus_UnknownRoomStillSends(t *testing.T) {
	src := &mockSource{}
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil).Once()
	src.On("UpdateStatus", mock.Anything, "9", rooms.StatusGuiding).
		Return([]byte(`{"detail":"Room with ID 9 not found"}`), nil).Once()
	src.On("FetchRooms", mock.Anything).Return(seedRooms(), nil).Once()
	eng, reg := startEngine(t, src, nil)
	require.NoError(t, eng.Load(context.Background()))
	before := reg.Rooms()

	cmd, err := eng.SetStatus(context.Background(), "9", rooms.StatusGuiding)
	require.NoError(t, err)
	assert.Equal(t, before, reg.Rooms())

	outcome, _ := waitCommand(t, cmd)
	assert.Equal(t, OutcomeResynced, outcome)
	src.AssertExpectations(t)
}

func TestSetStatus_RejectsUndefinedStatus(t *testing.T) {
	eng, _ := startEngine(t, &mockSource{}, nil)
	_, err := eng.SetStatus(context.Background(), "1", "SOLD")
	assert.ErrorIs(t, err, rooms.ErrUnknownStatus)
}

func TestSetStatus_PatchArrivingMidFlightIsOverriddenByReconcile(t *testing.T) {
	src := &gatedSource{
		rooms:   seedRooms(),
		release: make(chan struct{}),
		body:    []byte(`{"room":{"id":"1","status":"CONTRACTED"}}`),
	}
	eng, reg := startEngine(t, src, nil)
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "1", rooms.StatusContracted)
	require.NoError(t, err)

	// A stream patch lands between the optimistic update and the result.
	require.NoError(t, eng.HandleFrame([]byte(`{"type":"ROOM_STATUS_UPDATE","room_id":"1","new_status":"GUIDING"}`)))
	assert.Equal(t, rooms.StatusGuiding, reg.Rooms()[0].Status)

	close(src.release)
	outcome, err := waitCommand(t, cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, outcome)
	assert.Equal(t, rooms.StatusContracted, reg.Rooms()[0].Status)
}

func TestSetStatus_ResultAfterStopIsDiscarded(t *testing.T) {
	src := &gatedSource{
		rooms:   seedRooms(),
		release: make(chan struct{}),
		body:    []byte(`{"room":{"id":"1","status":"GUIDING"}}`),
	}
	reg := &state.Registry{}
	eng := New(reg, src, nil, Options{RequestTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "1", rooms.StatusContracted)
	require.NoError(t, err)

	cancel()
	<-eng.Done()
	close(src.release)

	outcome, err := waitCommand(t, cmd)
	assert.Equal(t, OutcomeDiscarded, outcome)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, rooms.StatusContracted, reg.Rooms()[0].Status)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	assert.NoError(t, eng.Wait(waitCtx))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "pending", OutcomePending.String())
	assert.Equal(t, "reconciled", OutcomeReconciled.String())
	assert.Equal(t, "resynced", OutcomeResynced.String())
	assert.Equal(t, "resync failed", OutcomeResyncFailed.String())
	assert.Equal(t, "discarded", OutcomeDiscarded.String())
}

func TestDo_AppliedBeforeStopReportsSuccess(t *testing.T) {
	for i := 0; i < 50; i++ {
		eng := New(&state.Registry{}, &mockSource{}, nil, Options{})
		ran := false
		result := make(chan error, 1)
		go func() { result <- eng.do(func() { ran = true }) }()

		// Act as the loop: run the mutation, then exit.
		fn := <-eng.events
		fn()
		close(eng.stopped)

		require.NoError(t, <-result)
		assert.True(t, ran)
	}
}

func TestStop_CancelsInFlightCommand(t *testing.T) {
	src := &gatedSource{rooms: seedRooms(), release: make(chan struct{})}
	reg := &state.Registry{}
	eng := New(reg, src, nil, Options{RequestTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()
	require.NoError(t, eng.Load(context.Background()))

	cmd, err := eng.SetStatus(context.Background(), "1", rooms.StatusGuiding)
	require.NoError(t, err)

	cancel()
	<-eng.Done()

	// The request would otherwise hold for the full minute.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, eng.Wait(waitCtx))

	outcome, err := cmd.Wait(context.Background())
	assert.Equal(t, OutcomeDiscarded, outcome)
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.fetchCount(), "no reload after stop")
}
