// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import "github.com/rs/xid"

// NewSessionID returns a compact, time-sortable opaque id for a session.
//
// The id keys the weak-reference table; collaborators hold it instead of
// a session pointer and resolve it on use.
func NewSessionID() string {
	return xid.New().String()
}
