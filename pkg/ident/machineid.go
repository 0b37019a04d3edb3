// Package ident derives a stable identifier for this client instance.
package ident

import (
	"github.com/denisbrodbeck/machineid"
)

// ClientID returns a stable, app-scoped machine identifier. It is sent with
// socket auth frames and stamped on system-originated audit events so
// multiple deployments sharing one token can be told apart.
func ClientID() (string, error) {
	return machineid.ProtectedID("journal-core")
}
