package services

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestCodeStoreExpiresOnRead(t *testing.T) {
	clock := clockwork.NewFakeClock()
	codes := NewCodeStore(clock, time.Minute)
	defer codes.Close()

	assert.True(t, codes.Remember("abc"))
	assert.False(t, codes.Remember("abc"))
	assert.True(t, codes.Seen("abc"))

	clock.Advance(time.Minute)

	assert.False(t, codes.Seen("abc"))
	assert.Equal(t, 0, codes.Len(), "expired code dropped on read")
	assert.True(t, codes.Remember("abc"))
}

func TestCodeStoreForgetAndClose(t *testing.T) {
	codes := NewCodeStore(clockwork.NewFakeClock(), time.Hour)

	assert.True(t, codes.Remember("x"))
	codes.Forget("x")
	assert.True(t, codes.Remember("x"))

	codes.Close()
	assert.False(t, codes.Seen("x"))
	assert.False(t, codes.Remember("y"))
}
