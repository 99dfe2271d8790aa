package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/audit/store/memory"
)

func TestPublisher_DrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store, WithBufferSize(100))

	for range 10 {
		pub.Emit(context.Background(), audit.SecurityEvent{
			Subject: "RAB12345",
			Action:  audit.EventOTPFailed,
			Reason:  "otp_mismatch",
		})
	}
	require.NoError(t, pub.Close())

	events, err := store.ListBySubject(context.Background(), "RAB12345")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
	assert.Equal(t, audit.SeverityWarning, events[0].Severity)
}

func TestRingBuffer_DropsOldest(t *testing.T) {
	b := NewRingBuffer(2)
	b.Enqueue(audit.SecurityEvent{Subject: "a"})
	b.Enqueue(audit.SecurityEvent{Subject: "b"})
	b.Enqueue(audit.SecurityEvent{Subject: "c"})

	assert.Equal(t, int64(1), b.Dropped())
	batch := b.DequeueBatch(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "b", batch[0].Subject)
	assert.Equal(t, "c", batch[1].Subject)
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.DequeueBatch(1))
}
