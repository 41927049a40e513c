// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

// Player generates media toward one leg of a session: prompt files for
// PLAY, silence for music-on-hold. The payload generation lives outside
// this package.
type Player interface {
	// Play starts playback of pname toward the given leg, count times,
	// encoding with the given codecs; ptime is the packetization time
	// or -1 for the codec default.
	Play(s *Session, leg int, codecs, pname string, count, ptime int) error

	// Stop cancels any playback on the given leg. A no-op when nothing
	// plays.
	Stop(s *Session, leg int)
}

// noopPlayer accepts every request and plays nothing.
type noopPlayer struct{}

var _ Player = noopPlayer{}

func (noopPlayer) Play(s *Session, leg int, codecs, pname string, count, ptime int) error {
	return nil
}

func (noopPlayer) Stop(s *Session, leg int) {}
