package services

import "github.com/nkrylov/cipherchat/internal/models"

// Broadcaster fans a row-level change out to feed subscribers. The websocket
// hub implements it; tests use a recorder.
type Broadcaster interface {
	Broadcast(event models.ChangeEvent)
}

// nopBroadcaster is used when no hub is wired, e.g. in repository-level tests.
type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(models.ChangeEvent) {}
