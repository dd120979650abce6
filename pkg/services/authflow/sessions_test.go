package authflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	name string
	data any
}

func newRecordingRegistry() (*SessionRegistry, *[]recordedEvent) {
	events := &[]recordedEvent{}
	registry := NewSessionRegistry(func(name string, data any) {
		*events = append(*events, recordedEvent{name: name, data: data})
	})
	return registry, events
}

func TestSessionBegin(t *testing.T) {
	registry, events := newRecordingRegistry()

	session := registry.Begin("github")
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "github", session.Provider)
	assert.Equal(t, SessionPending, session.State)
	assert.False(t, session.StartedAt.IsZero())

	require.Len(t, *events, 1)
	assert.Equal(t, EventSessionStarted, (*events)[0].name)

	stored, ok := registry.Get(session.ID)
	require.True(t, ok)
	assert.Equal(t, session.ID, stored.ID)
}

func TestSessionComplete(t *testing.T) {
	registry, events := newRecordingRegistry()
	session := registry.Begin("github")

	registry.Complete(session.ID, true, nil)

	stored, ok := registry.Get(session.ID)
	require.True(t, ok)
	assert.Equal(t, SessionCompleted, stored.State)
	assert.False(t, stored.EndedAt.IsZero())
	assert.Empty(t, stored.LastError)

	require.Len(t, *events, 2)
	assert.Equal(t, EventSessionChanged, (*events)[1].name)
}

func TestSessionCompleteWithFailure(t *testing.T) {
	registry, _ := newRecordingRegistry()
	session := registry.Begin("github")

	registry.Complete(session.ID, false, errors.New("token exchange failed"))

	stored, _ := registry.Get(session.ID)
	assert.Equal(t, SessionFailed, stored.State)
	assert.Equal(t, "token exchange failed", stored.LastError)
}

func TestSessionDismiss(t *testing.T) {
	registry, _ := newRecordingRegistry()
	session := registry.Begin("github")

	registry.Dismiss(session.ID)

	stored, _ := registry.Get(session.ID)
	assert.Equal(t, SessionDismissed, stored.State)
}

func TestSessionTerminalStatesAreFinal(t *testing.T) {
	registry, events := newRecordingRegistry()
	session := registry.Begin("github")

	registry.Dismiss(session.ID)
	// A straggling outcome after dismissal changes nothing.
	registry.Complete(session.ID, true, nil)

	stored, _ := registry.Get(session.ID)
	assert.Equal(t, SessionDismissed, stored.State)
	assert.Len(t, *events, 2, "terminal transition must not emit again")
}

func TestSessionTransitionUnknownID(t *testing.T) {
	registry, events := newRecordingRegistry()

	registry.Complete("nope", true, nil)
	registry.Dismiss("nope")
	assert.Empty(t, *events)
}

func TestSessionRemove(t *testing.T) {
	registry, _ := newRecordingRegistry()
	session := registry.Begin("github")

	assert.True(t, registry.Remove(session.ID))
	assert.False(t, registry.Remove(session.ID))
	_, ok := registry.Get(session.ID)
	assert.False(t, ok)
}

func TestSessionListOrdering(t *testing.T) {
	registry, _ := newRecordingRegistry()

	first := registry.Begin("github")
	second := registry.Begin("gitlab")
	third := registry.Begin("google")

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, third.ID, list[2].ID)
}
