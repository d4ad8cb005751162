package preview

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/beatdeck/internal/domain/track"
)

type fakeFetcher struct {
	containerCalls atomic.Int32
	trackCalls     atomic.Int32
	gate           chan struct{}
	err            error
	urls           map[string]string
}

func (f *fakeFetcher) FetchContainer(ctx context.Context, c track.Container) ([]Preview, error) {
	f.containerCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	n := f.containerCalls.Load()
	return []Preview{
		{TrackID: "a", URL: "https://cdn/a?v=" + string(rune('0'+n)), Title: "A"},
		{TrackID: "b", URL: "https://cdn/b?v=" + string(rune('0'+n)), Title: "B"},
		{TrackID: "c", Title: "C"},
	}, nil
}

func (f *fakeFetcher) FetchTrack(ctx context.Context, id string) (string, error) {
	f.trackCalls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.urls[id], nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var pack = track.Container{Kind: track.KindPackMember, ID: "42"}

func TestResolver_ContainerCache(t *testing.T) {
	f := &fakeFetcher{}
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	r := NewResolver(f, 10*time.Minute, WithClock(clk.Now))
	ctx := context.Background()

	first := r.ResolveContainer(ctx, pack, false)
	assert.Equal(t, "https://cdn/a?v=1", first["a"])
	assert.NotContains(t, first, "c", "tracks without a preview are absent")

	clk.Advance(9 * time.Minute)
	r.ResolveContainer(ctx, pack, false)
	assert.Equal(t, int32(1), f.containerCalls.Load(), "fresh entry served from cache")

	forced := r.ResolveContainer(ctx, pack, true)
	assert.Equal(t, int32(2), f.containerCalls.Load(), "force bypasses ttl")
	assert.Equal(t, "https://cdn/a?v=2", forced["a"])

	clk.Advance(11 * time.Minute)
	r.ResolveContainer(ctx, pack, false)
	assert.Equal(t, int32(3), f.containerCalls.Load(), "expired entry refetched")

	r.Invalidate(pack)
	r.ResolveContainer(ctx, pack, false)
	assert.Equal(t, int32(4), f.containerCalls.Load())
}

func TestResolver_FailureYieldsEmpty(t *testing.T) {
	f := &fakeFetcher{err: errors.New("503 Service Unavailable")}
	r := NewResolver(f, time.Minute)
	ctx := context.Background()

	assert.Empty(t, r.ResolveContainer(ctx, pack, false))
	assert.Equal(t, "", r.ResolveTrack(ctx, "x"))
	assert.Equal(t, "", r.Resolve(ctx, track.PackMember("42", "a", "", ""), false))

	_, err := r.ContainerTracks(ctx, pack)
	assert.Error(t, err)
}

func TestResolver_ConcurrentMissesConverge(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	r := NewResolver(f, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]map[string]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.ResolveContainer(ctx, pack, false)
		}(i)
	}

	require.Eventually(t, func() bool { return f.containerCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.LessOrEqual(t, f.containerCalls.Load(), int32(2))
	for _, res := range results {
		assert.NotEmpty(t, res["a"])
	}
}

func TestResolver_Resolve(t *testing.T) {
	f := &fakeFetcher{urls: map[string]string{"solo": "https://cdn/solo?sig=new"}}
	r := NewResolver(f, time.Minute)
	ctx := context.Background()

	cached := track.Standalone("solo", "", "")
	cached.AudioURL = "https://cdn/solo?sig=old"

	assert.Equal(t, "https://cdn/solo?sig=old", r.Resolve(ctx, cached, false), "descriptor url acts as cache")
	assert.Equal(t, int32(0), f.trackCalls.Load())

	assert.Equal(t, "https://cdn/solo?sig=new", r.Resolve(ctx, cached, true))
	assert.Equal(t, "https://cdn/solo?sig=new", r.Resolve(ctx, track.Standalone("solo", "", ""), false))
	assert.Equal(t, int32(2), f.trackCalls.Load())

	assert.Equal(t, "https://cdn/b?v=1", r.Resolve(ctx, track.PackMember("42", "b", "", ""), false))
	assert.Equal(t, "", r.Resolve(ctx, track.PackMember("42", "zzz", "", ""), false))
}

func TestResolver_ContainerTracks(t *testing.T) {
	r := NewResolver(&fakeFetcher{}, time.Minute)

	tracks, err := r.ContainerTracks(context.Background(), track.Container{Kind: track.KindKitMember, ID: "7"})
	require.NoError(t, err)
	require.Len(t, tracks, 3)
	assert.Equal(t, track.Source{Kind: track.KindKitMember, ContainerID: "7"}, tracks[0].Source)
	assert.Equal(t, "A", tracks[0].Title)
	assert.Equal(t, "https://cdn/a?v=1", tracks[0].AudioURL)
}
