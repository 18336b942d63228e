package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	ms := ToUnixMs(now)
	assert.Equal(t, now.UnixMilli(), ms)
	assert.True(t, ToTime(ms).Equal(now))
}

func TestZeroValueSemantics(t *testing.T) {
	assert.True(t, IsZero(0))
	assert.True(t, ToTime(0).IsZero())
	assert.Equal(t, int64(0), ToUnixMs(time.Time{}))
	assert.Equal(t, "", Format(0))
	assert.Equal(t, time.Duration(0), Since(0))
	assert.Equal(t, time.Duration(0), Between(0, Now()))
}

func TestFormat(t *testing.T) {
	ms := int64(1673785845123)
	assert.Equal(t, "2023-01-15T12:30:45Z", Format(ms))
}

func TestBetween(t *testing.T) {
	start := int64(1000)
	end := int64(1250)
	assert.Equal(t, 250*time.Millisecond, Between(start, end))
}

func TestMax(t *testing.T) {
	assert.Equal(t, int64(20), Max(10, 20))
	assert.Equal(t, int64(20), Max(20, 10))
	assert.Equal(t, int64(10), Max(0, 10))
	assert.Equal(t, int64(10), Max(10, 0))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Now()))
	assert.NoError(t, Validate(0))
	assert.Error(t, Validate(-1))
	assert.Error(t, Validate(time.Now().UnixNano()))
}
