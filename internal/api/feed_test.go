package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotag/photomap/internal/mapfeed"
	"github.com/geotag/photomap/internal/storage/memory"
	"github.com/geotag/photomap/pkg/core"
	"github.com/geotag/photomap/pkg/streaming"
)

type snapshotLog struct {
	mu    sync.Mutex
	snaps []streaming.SnapshotPayload
}

func (l *snapshotLog) add(s streaming.SnapshotPayload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *snapshotLog) last() (streaming.SnapshotPayload, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.snaps) == 0 {
		return streaming.SnapshotPayload{}, false
	}
	return l.snaps[len(l.snaps)-1], true
}

func lastCount(l *snapshotLog) int {
	s, ok := l.last()
	if !ok {
		return -1
	}
	return s.Count
}

func startFeedServer(t *testing.T) (*memory.Backend, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := memory.New()
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })

	s := mapfeed.New(mapfeed.Dependencies{Store: store})
	require.NoError(t, s.Start(ctx))
	t.Cleanup(s.Close)

	h := httptest.NewServer(s.Handler())
	t.Cleanup(h.Close)
	return store, h
}

func TestSubscribe_ReceivesLiveSnapshots(t *testing.T) {
	store, srv := startFeedServer(t)
	log := &snapshotLog{}

	c := New(srv.URL, "")
	feed, err := c.Subscribe(context.Background(), core.DefaultCollection, log.add, nil)
	require.NoError(t, err)
	defer feed.Close()

	require.Eventually(t, func() bool { return lastCount(log) == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = store.Append(context.Background(), core.DefaultCollection, core.PhotoRecord{
		ImageData:  base64.StdEncoding.EncodeToString([]byte("img")),
		Location:   core.Coords{Latitude: 12.9716, Longitude: 77.5946},
		CapturedBy: "u1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return lastCount(log) == 1 }, 2*time.Second, 10*time.Millisecond)
	snap, _ := log.last()
	assert.Equal(t, "1 photo", snap.Label)
	assert.Equal(t, "u1", snap.Photos[0].UID)
}

func TestSubscribe_UnknownCollection(t *testing.T) {
	_, srv := startFeedServer(t)

	c := New(srv.URL, "")
	_, err := c.Subscribe(context.Background(), "other", nil, nil)
	assert.Error(t, err)
}

func TestSubscribe_DialFailure(t *testing.T) {
	c := New("http://localhost:59999", "")
	_, err := c.Subscribe(context.Background(), "", nil, nil)
	assert.Error(t, err)
}

// flakyServer acks every subscribe and drops the first connection right
// after its ack. Later connections get a snapshot counting connections.
func flakyServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()
		n := conns.Add(1)

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil || env.Type != streaming.TypeSubscribe {
				continue
			}

			ack, _ := streaming.MarshalAck(streaming.TypeSubscribe)
			if err := c.WriteMessage(ws.TextMessage, ack); err != nil {
				return
			}
			if n == 1 {
				return
			}
			snap, _ := streaming.Marshal(streaming.TypeSnapshot, streaming.SnapshotPayload{Count: int(n)})
			if err := c.WriteMessage(ws.TextMessage, snap); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func TestFeed_ReconnectsAndResubscribes(t *testing.T) {
	srv, conns := flakyServer(t)
	log := &snapshotLog{}

	c := New(srv.URL, "")
	c.feedBackoff = 10 * time.Millisecond
	feed, err := c.Subscribe(context.Background(), "", log.add, nil)
	require.NoError(t, err)
	defer feed.Close()

	require.Eventually(t, func() bool { return lastCount(log) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), conns.Load())
}

func TestFeed_CloseIsIdempotent(t *testing.T) {
	_, srv := startFeedServer(t)

	feed, err := New(srv.URL, "").Subscribe(context.Background(), "", nil, nil)
	require.NoError(t, err)

	assert.NoError(t, feed.Close())
	assert.NoError(t, feed.Close())
}
