// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionQuery(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	assert.Equal(t, "12345 20040107\n", submit(e, sender, "12345 V\n"))
}

func TestCapabilityProbe(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	assert.Equal(t, "c1 1\n", submit(e, sender, "c1 VF 20191015\n"))
	assert.Equal(t, "c2 0\n", submit(e, sender, "c2 VF 19700101\n"))
}

func TestCapabilityProbeNotifyPrecondition(t *testing.T) {
	// Without a notification target configured, the 20081224 probe
	// replies 0 even though the id is in the capability list.
	e, sender, _ := newTestEngine(t)
	assert.Equal(t, "c1 0\n", submit(e, sender, "c1 VF 20081224\n"))

	clock := newTestClock()
	cfg := NewConfig()
	cfg.TimeNow = clock.Now
	cfg.NotifyTarget = "unix:/run/notify.sock"
	e2 := NewEngine(cfg)
	t.Cleanup(e2.Shutdown)
	sender2 := &syncSender{}
	e2.Sender = sender2
	e2.Alloc = &fakePairAllocator{}
	assert.Equal(t, "c2 1\n", submit(e2, sender2, "c2 VF 20081224\n"))
}

func TestSessionLifecycle(t *testing.T) {
	e, sender, _ := newTestEngine(t)

	// UPDATE allocates a fresh even port and creates the session.
	reply := submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	var port int
	_, err := fmt.Sscanf(reply, "u1 %d\n", &port)
	require.NoError(t, err)
	assert.Equal(t, 0, port%2)
	assert.Equal(t, 1, e.Sessions.Len())
	assert.Equal(t, int64(1), e.Stats.Get("nsess_created"))

	// LOOKUP promotes the session and allocates the other leg.
	reply = submit(e, sender, "u2 L call-A ft 5.6.7.8 6000 tt\n")
	var port2 int
	_, err = fmt.Sscanf(reply, "u2 %d\n", &port2)
	require.NoError(t, err)
	assert.NotZero(t, port2)
	assert.NotEqual(t, port, port2)
	s, _, ok := e.Sessions.FindStream("call-A", "ft", "tt")
	require.True(t, ok)
	assert.Equal(t, "tt", s.ToTag)
	s.DecRef()

	// DELETE destroys; a second DELETE reports session unknown.
	assert.Equal(t, "d1 0\n", submit(e, sender, "d1 D call-A ft tt\n"))
	assert.Equal(t, 0, e.Sessions.Len())
	assert.Equal(t, "d2 E8\n", submit(e, sender, "d2 D call-A ft tt\n"))

	// LOOKUP after delete yields the synthetic no-port reply.
	assert.Equal(t, "u3 0\n", submit(e, sender, "u3 L call-A ft 5.6.7.8 6000 tt\n"))
}

func TestAtMostOnce(t *testing.T) {
	e, sender, _ := newTestEngine(t)

	line := "x1 Ux call-B ft 1.2.3.4 5000\n"
	first := submit(e, sender, line)
	require.NotEmpty(t, first)
	assert.Equal(t, 1, e.Sessions.Len())

	// The identical bytes within the cache TTL yield the identical
	// reply and mutate session state exactly once.
	second := submit(e, sender, line)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, e.Sessions.Len())
	assert.Equal(t, int64(1), e.Stats.Get("nsess_created"))
	assert.Equal(t, int64(1), e.Stats.Get("ncmds_rcvd"))
	assert.Equal(t, int64(1), e.Stats.Get("ncmds_rcvd_ndups"))
}

func TestSubCommandSplit(t *testing.T) {
	e, _, _ := newTestEngine(t)

	cmd := e.newCommand(true, nil, nil, testRaddr)
	done := e.splitCommand(cmd, "y1 U call-C ft 1.2.3.4 5000 && M0 someparam\n")
	require.False(t, done)
	assert.Equal(t, []string{"U", "call-C", "ft", "1.2.3.4", "5000"}, cmd.Args)
	assert.Equal(t, []string{"M0", "someparam"}, cmd.SubcArgs)

	e.handleCommand(cmd)
	cmd.finish()
	assert.Equal(t, 1, e.Sessions.Len())
}

func TestDeleteAll(t *testing.T) {
	e, sender, _ := newTestEngine(t)

	submit(e, sender, "a1 U call-A ft 1.2.3.4 5000\n")
	submit(e, sender, "b1 U call-B ft 1.2.3.4 5002\n")
	submit(e, sender, "c1 U call-C ft 1.2.3.4 5004\n")
	require.Equal(t, 3, e.Sessions.Len())

	assert.Equal(t, "x1 0\n", submit(e, sender, "x1 X\n"))
	assert.Equal(t, 0, e.Sessions.Len())
	assert.Equal(t, int64(3), e.Stats.Get("nsess_destroyed"))

	assert.Equal(t, "l1 0\n", submit(e, sender, "l1 L call-A ft 5.6.7.8 6000 tt\n"))
	assert.Equal(t, "l2 0\n", submit(e, sender, "l2 L call-B ft 5.6.7.8 6000 tt\n"))
}

func TestUpdateRefreshesExistingSession(t *testing.T) {
	e, sender, _ := newTestEngine(t)

	first := submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	var port int
	_, err := fmt.Sscanf(first, "u1 %d\n", &port)
	require.NoError(t, err)

	// A re-update of the same triple reuses the allocated port.
	second := submit(e, sender, "u2 U call-A ft 1.2.3.4 5001\n")
	assert.Equal(t, fmt.Sprintf("u2 %d\n", port), second)
	assert.Equal(t, 1, e.Sessions.Len())
	assert.Equal(t, int64(1), e.Stats.Get("nsess_created"))
}

func TestWeakUpdateAndWeakDelete(t *testing.T) {
	e, sender, _ := newTestEngine(t)

	submit(e, sender, "u1 Uw call-A ft 1.2.3.4 5000\n")
	require.Equal(t, 1, e.Sessions.Len())

	// The weak delete drops the hold taken by the weak update and,
	// being the last one, destroys the session.
	assert.Equal(t, "d1 0\n", submit(e, sender, "d1 Dw call-A ft\n"))
	assert.Equal(t, 0, e.Sessions.Len())
}

func TestDeleteUnknownModifier(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	assert.Equal(t, "d1 E5\n", submit(e, sender, "d1 Dz call-A ft\n"))
}

func TestPlayAndNoPlay(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	player := &recordingPlayer{}
	e.Player = player

	submit(e, sender, "u1 Uc0,8 call-A ft 1.2.3.4 5000\n")
	assert.Equal(t, "p1 0\n", submit(e, sender, "p1 P call-A prompt 0,8 ft\n"))
	require.Len(t, player.plays, 1)
	assert.Equal(t, "0,8", player.plays[0].codecs)
	assert.Equal(t, 1, player.plays[0].count)

	// The "session" literal reuses the codecs of the last update.
	assert.Equal(t, "p2 0\n", submit(e, sender, "p2 P2 call-A prompt session ft\n"))
	require.Len(t, player.plays, 2)
	assert.Equal(t, "0,8", player.plays[1].codecs)
	assert.Equal(t, 2, player.plays[1].count)

	assert.Equal(t, "s1 0\n", submit(e, sender, "s1 S call-A ft\n"))
	assert.Equal(t, 3, player.stops) // one per play, one for noplay
}

func TestPlaySessionCodecsMissing(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	assert.Equal(t, "p1 E15\n", submit(e, sender, "p1 P call-A prompt session ft\n"))
}

func TestPlayBadRepeatCount(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	assert.Equal(t, "p1 E6\n", submit(e, sender, "p1 Pbogus call-A prompt 0,8 ft\n"))
}

func TestPlayFailure(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	e.Player = &recordingPlayer{fail: errors.New("no such prompt")}
	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	assert.Equal(t, "p1 E9\n", submit(e, sender, "p1 P call-A prompt 0,8 ft\n"))
}

func TestPlayUnknownSession(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	assert.Equal(t, "p1 E8\n", submit(e, sender, "p1 P call-A prompt 0,8 ft\n"))
}

func TestRecordAndCopy(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	rec := &recordingRecorder{}
	e.Recorder = rec

	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	assert.Equal(t, "r1 0\n", submit(e, sender, "r1 R call-A ft\n"))
	assert.Equal(t, 1, rec.records)

	assert.Equal(t, "c1 0\n", submit(e, sender, "c1 C call-A rec-name ft\n"))
	require.Len(t, rec.copies, 1)
	assert.Equal(t, "rec-name", rec.copies[0])
}

func TestRecordSingleFileRequiresPCAP(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	// The S modifier parses, but single-file mode stays off without
	// PCAP recording configured.
	assert.Equal(t, "r1 0\n", submit(e, sender, "r1 RS call-A ft\n"))
	assert.Equal(t, "r2 E5\n", submit(e, sender, "r2 RSx call-A ft\n"))
}

func TestCopyFailure(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	e.Recorder = &recordingRecorder{fail: errors.New("disk full")}
	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	assert.Equal(t, "c1 E10\n", submit(e, sender, "c1 C call-A rec-name ft\n"))
}

func TestQueryCounters(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	s, _, ok := e.Sessions.FindStream("call-A", "ft", "")
	require.True(t, ok)
	s.PCount[0].Store(7)
	s.PCount[1].Store(3)
	s.DecRef()

	reply := submit(e, sender, "q1 Q call-A ft\n")
	assert.Equal(t, fmt.Sprintf("q1 %d 7 3 10 0\n", DefaultSessionTTL), reply)
}

func TestInfoCounters(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")
	e.Stats.Add("npkts_rcvd", 42)
	e.Stats.Add("npkts_relayed", 40)

	reply := submit(e, sender, "i1 I\n")
	body := strings.TrimPrefix(reply, "i1 ")
	assert.Contains(t, body, "sessions created: 1\n")
	assert.Contains(t, body, "active sessions: 1\n")
	assert.Contains(t, body, "active streams: 1\n")
	assert.Contains(t, body, "packets received: 42\n")
	assert.Contains(t, body, "packets transmitted: 40\n")
	assert.NotContains(t, body, "average load")

	reply = submit(e, sender, "i2 Il\n")
	assert.Contains(t, reply, "average load: ")

	assert.Equal(t, "i3 E7\n", submit(e, sender, "i3 Iz\n"))
}

func TestGetStats(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n")

	reply := submit(e, sender, "g1 G\n")
	assert.Contains(t, reply, "nsess_created = 1\n")
	assert.NotContains(t, reply, "Number of sessions created")

	reply = submit(e, sender, "g2 Gv\n")
	assert.Contains(t, reply, "nsess_created (Number of sessions created) = 1\n")

	assert.Equal(t, "g3 E5\n", submit(e, sender, "g3 Gz\n"))
}

func TestUpdateAllocationFailures(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	e.Alloc = &fakePairAllocator{fail: ErrNoPorts}
	assert.Equal(t, "u1 E16\n", submit(e, sender, "u1 U call-A ft 1.2.3.4 5000\n"))

	e.Alloc = &fakePairAllocator{fail: errors.New("socket creation failed")}
	assert.Equal(t, "u2 E17\n", submit(e, sender, "u2 U call-A ft 1.2.3.4 5000\n"))
	assert.Equal(t, 0, e.Sessions.Len())
}

func TestUpdateBadPeerAddress(t *testing.T) {
	e, sender, _ := newTestEngine(t)
	assert.Equal(t, "u1 E11\n", submit(e, sender, "u1 U call-A ft not-an-ip 5000\n"))
	assert.Equal(t, "u2 E12\n", submit(e, sender, "u2 U call-A ft 1.2.3.4 99999\n"))
	assert.Equal(t, "u3 E5\n", submit(e, sender, "u3 U! call-A ft 1.2.3.4 5000\n"))
}

// recordingPlayer records play/stop requests.
type recordingPlayer struct {
	fail  error
	plays []playReq
	stops int
}

type playReq struct {
	codecs string
	pname  string
	count  int
	ptime  int
}

func (p *recordingPlayer) Play(s *Session, leg int, codecs, pname string, count, ptime int) error {
	if p.fail != nil {
		return p.fail
	}
	p.plays = append(p.plays, playReq{codecs: codecs, pname: pname, count: count, ptime: ptime})
	return nil
}

func (p *recordingPlayer) Stop(s *Session, leg int) {
	p.stops++
}

// recordingRecorder records record/copy requests.
type recordingRecorder struct {
	fail    error
	records int
	copies  []string
}

func (r *recordingRecorder) Record(s *Session, singleFile bool) error {
	if r.fail != nil {
		return r.fail
	}
	r.records++
	return nil
}

func (r *recordingRecorder) Copy(s *Session, leg int, name string, singleFile bool) error {
	if r.fail != nil {
		return r.fail
	}
	r.copies = append(r.copies, name)
	return nil
}
