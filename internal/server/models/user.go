// Package models holds server-only row types. Wire-visible types live in
// the shared models package.
package models

import "time"

type User struct {
	ID        string
	UserName  string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}
