package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Buzzline/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(Frame) error { return nil }
func (nopConn) Close()              {}

func member(id string) Member {
	p, _ := domain.NewPeer(domain.PeerID(id), "")
	return Member{Peer: p, Conn: nopConn{}}
}

func TestPeerRegistry_CapacityUnderConcurrentJoins(t *testing.T) {
	reg := NewPeerRegistry()
	const seats = 4

	var admitted, full atomic.Int32
	var wg conc.WaitGroup
	for i := 0; i < seats*5; i++ {
		wg.Go(func() {
			_, err := reg.AddPeer("room", member(fmt.Sprintf("p%d", i)), seats, nil)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, domain.ErrRoomFull):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	assert.EqualValues(t, seats, admitted.Load())
	assert.EqualValues(t, seats*4, full.Load())
	assert.Equal(t, seats, reg.Count("room"))
}

func TestPeerRegistry_AdmitVetoRollsBack(t *testing.T) {
	reg := NewPeerRegistry()
	veto := errors.New("veto")

	_, err := reg.AddPeer("room", member("a"), 2, func(Transition) error { return veto })
	require.ErrorIs(t, err, veto)
	assert.Equal(t, 0, reg.Count("room"))
	assert.Empty(t, reg.List("room"))

	_, err = reg.AddPeer("room", member("a"), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Count("room"))
}

func TestPeerRegistry_HooksSeeTransitions(t *testing.T) {
	reg := NewPeerRegistry()
	var sizes []int
	var others [][]domain.PeerID
	hook := func(tr Transition) error {
		sizes = append(sizes, tr.Size)
		ids := make([]domain.PeerID, 0, len(tr.Others))
		for _, m := range tr.Others {
			ids = append(ids, m.Peer.ID)
		}
		others = append(others, ids)
		return nil
	}

	_, err := reg.AddPeer("room", member("a"), 2, hook)
	require.NoError(t, err)
	_, err = reg.AddPeer("room", member("b"), 2, hook)
	require.NoError(t, err)
	require.True(t, reg.RemovePeer("room", "a", hook))
	require.True(t, reg.RemovePeer("room", "b", hook))

	assert.Equal(t, []int{1, 2, 1, 0}, sizes)
	assert.Equal(t, [][]domain.PeerID{{}, {"a"}, {"b"}, {}}, others)
}

func TestPeerRegistry_RemoveIsIdempotent(t *testing.T) {
	reg := NewPeerRegistry()
	_, err := reg.AddPeer("room", member("a"), 2, nil)
	require.NoError(t, err)

	calls := 0
	hook := func(Transition) error { calls++; return nil }
	assert.True(t, reg.RemovePeer("room", "a", hook))
	assert.False(t, reg.RemovePeer("room", "a", hook))
	assert.False(t, reg.RemovePeer("unknown", "a", hook))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, reg.Count("room"))
}

func TestPeerRegistry_DuplicateAddIsNoop(t *testing.T) {
	reg := NewPeerRegistry()
	_, err := reg.AddPeer("room", member("a"), 1, nil)
	require.NoError(t, err)
	_, err = reg.AddPeer("room", member("a"), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Count("room"))
}

func TestPeerRegistry_LookupAndList(t *testing.T) {
	reg := NewPeerRegistry()
	_, err := reg.AddPeer("room", member("a"), 2, nil)
	require.NoError(t, err)

	m, ok := reg.Lookup("room", "a")
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("a"), m.Peer.ID)

	_, ok = reg.Lookup("room", "b")
	assert.False(t, ok)
	_, ok = reg.Lookup("other", "a")
	assert.False(t, ok)

	assert.Len(t, reg.List("room"), 1)
	assert.NotNil(t, reg.List("other"))
}

func TestPeerRegistry_ChurnKeepsRoomsUsable(t *testing.T) {
	reg := NewPeerRegistry()
	var mu sync.Mutex
	errs := 0

	var wg conc.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Go(func() {
			id := fmt.Sprintf("p%d", i)
			if _, err := reg.AddPeer("room", member(id), 100, nil); err != nil {
				mu.Lock()
				errs++
				mu.Unlock()
				return
			}
			reg.RemovePeer("room", domain.PeerID(id), nil)
		})
	}
	wg.Wait()

	assert.Zero(t, errs)
	assert.Equal(t, 0, reg.Count("room"))
	_, err := reg.AddPeer("room", member("late"), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Count("room"))
}

func TestPeerRegistry_WhenEmpty(t *testing.T) {
	reg := NewPeerRegistry()
	calls := 0
	fn := func() error { calls++; return nil }

	ran, err := reg.WhenEmpty("room", fn)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 0, reg.Count("room"))

	_, err = reg.AddPeer("room", member("a"), 2, nil)
	require.NoError(t, err)
	ran, err = reg.WhenEmpty("room", fn)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	reg.RemovePeer("room", "a", nil)
	ran, err = reg.WhenEmpty("room", func() error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}
