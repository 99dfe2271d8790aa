package compliance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }

func TestPublisher_Emit(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store)

	err := pub.Emit(context.Background(), audit.ComplianceEvent{
		PetCode: "DOG12345",
		Action:  audit.EventOwnershipTransferred,
		ActorID: "staff-1",
		OwnerID: "owner-1",
	})
	require.NoError(t, err)

	events, err := store.ListBySubject(context.Background(), "DOG12345")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, "owner-1", events[0].OwnerID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_RequiresFields(t *testing.T) {
	pub := New(memory.NewInMemoryStore())

	assert.Error(t, pub.Emit(context.Background(), audit.ComplianceEvent{Action: audit.EventPetDeceased, ActorID: "a"}))
	assert.Error(t, pub.Emit(context.Background(), audit.ComplianceEvent{PetCode: "CAT00001", ActorID: "a"}))
	assert.Error(t, pub.Emit(context.Background(), audit.ComplianceEvent{PetCode: "CAT00001", Action: audit.EventPetDeceased}))
}

func TestPublisher_FailClosed(t *testing.T) {
	pub := New(failingStore{})
	err := pub.Emit(context.Background(), audit.ComplianceEvent{
		PetCode: "DOG12345",
		Action:  audit.EventHandoverCompleted,
		ActorID: "staff-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
