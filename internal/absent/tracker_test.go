package absent

import (
	"sync"
	"testing"
	"time"

	"github.com/arkilian/rpftiles/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestTracker_DefaultPolicyIsPermanent(t *testing.T) {
	now := time.Unix(0, 0)
	tr := NewTracker(DefaultPolicy()).WithClock(func() time.Time { return now })

	assert.False(t, tr.IsAbsent(1))
	assert.Equal(t, Absent, tr.MarkAbsent(1))
	assert.True(t, tr.IsAbsent(1))

	now = now.Add(24 * 365 * time.Hour)
	assert.True(t, tr.IsAbsent(1))
	assert.False(t, tr.IsAbsent(2))
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_Strikes(t *testing.T) {
	tr := NewTracker(Policy{MaxStrikes: 3})

	assert.Equal(t, Striking, tr.MarkAbsent(7))
	assert.Equal(t, Striking, tr.MarkAbsent(7))
	assert.False(t, tr.IsAbsent(7))
	assert.Equal(t, Absent, tr.MarkAbsent(7))
	assert.True(t, tr.IsAbsent(7))
	assert.Equal(t, Absent, tr.MarkAbsent(7))
}

func TestTracker_CooldownExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := NewTracker(Policy{MaxStrikes: 1, Cooldown: time.Minute}).
		WithClock(func() time.Time { return now })

	tr.MarkAbsent(types.Key(3))
	assert.True(t, tr.IsAbsent(3))

	now = now.Add(59 * time.Second)
	assert.True(t, tr.IsAbsent(3))

	now = now.Add(time.Second)
	assert.False(t, tr.IsAbsent(3))
	assert.Equal(t, Unknown, tr.State(3))
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(DefaultPolicy())
	tr.MarkAbsent(1)
	tr.Reset(1)
	assert.False(t, tr.IsAbsent(1))
}

func TestTracker_ConcurrentUse(t *testing.T) {
	tr := NewTracker(Policy{MaxStrikes: 2})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := types.Key(i % 10)
			tr.MarkAbsent(k)
			tr.IsAbsent(k)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, tr.Len())
}
