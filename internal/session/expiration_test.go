package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHardTimeoutPolicy(t *testing.T) {
	p := HardTimeoutPolicy{TTL: time.Hour}
	base := time.Now()

	assert.False(t, p.IsExpired(State{Created: base, Now: base.Add(59 * time.Minute)}))
	assert.True(t, p.IsExpired(State{Created: base, Now: base.Add(61 * time.Minute)}))
}

func TestSlidingWindowPolicy(t *testing.T) {
	p := SlidingWindowPolicy{Window: 30 * time.Minute}
	base := time.Now()

	assert.False(t, p.IsExpired(State{Created: base, LastUsed: base.Add(time.Hour), Now: base.Add(89 * time.Minute)}))
	assert.True(t, p.IsExpired(State{Created: base, LastUsed: base, Now: base.Add(31 * time.Minute)}))
}

func TestLongTermPolicy_SelectsOnFlag(t *testing.T) {
	p := LongTermPolicy{
		Default:  SlidingWindowPolicy{Window: time.Hour},
		LongTerm: HardTimeoutPolicy{TTL: 30 * 24 * time.Hour},
	}
	base := time.Now()

	short := State{Created: base, LastUsed: base, Now: base.Add(2 * time.Hour)}
	assert.True(t, p.IsExpired(short))

	long := short
	long.LongTerm = true
	assert.False(t, p.IsExpired(long))
}
