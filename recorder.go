// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import "fmt"

// Recorder captures media to disk. The relay engages it on all streams
// of a session for RECORD, and on one leg with a caller-chosen name for
// COPY; the on-wire capture machinery lives outside this package.
//
// File naming follows "{call_id}_{from_tag}_{to_tag}.{ext}" and is
// stable within a run; [RecordingName] builds it.
type Recorder interface {
	// Record engages recording on every stream of the session.
	// singleFile merges both directions into one capture.
	Record(s *Session, singleFile bool) error

	// Copy engages recording of one leg under the given name.
	Copy(s *Session, leg int, name string, singleFile bool) error
}

// RecordingName returns the stable capture file name for a session.
func RecordingName(s *Session, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", s.CallID, s.FromTag, s.ToTag, ext)
}

// noopRecorder accepts every request and records nothing. It stands in
// until a real recorder is configured.
type noopRecorder struct{}

var _ Recorder = noopRecorder{}

func (noopRecorder) Record(s *Session, singleFile bool) error { return nil }

func (noopRecorder) Copy(s *Session, leg int, name string, singleFile bool) error { return nil }
