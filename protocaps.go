// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

// CProtoVer is the base control-protocol version datestamp, replied to
// the V command as a decimal number.
const CProtoVer = 20040107

// ProtoCap is one (datestamp, description) capability pair probed with
// the VF command.
type ProtoCap struct {
	ID    string
	Descr string
}

// protoCaps is the ordered capability list. The first entry is the basic
// protocol version and isn't shown as an extension.
var protoCaps = []ProtoCap{
	{"20040107", "Basic RTP proxy functionality"},
	{"20050322", "Support for multiple RTP streams and MOH"},
	{"20060704", "Support for extra parameter in the V command"},
	{"20071116", "Support for RTP re-packetization"},
	{"20071218", "Support for forking (copying) RTP stream"},
	{"20080403", "Support for RTP statistics querying"},
	{"20081102", "Support for setting codecs in the update/lookup command"},
	{"20081224", "Support for session timeout notifications"},
	{"20090810", "Support for automatic bridging"},
	{"20140323", "Support for tracking/reporting load"},
	{"20140617", "Support for anchoring session connect time"},
	{"20141004", "Support for extendable performance counters"},
	{"20150330", "Support for allocating a new port (\"Un\"/\"Ln\" commands)"},
	{"20150420", "Support for SEQ tracking and new rtpa_ counters; Q command extended"},
	{"20150617", "Support for the wildcard %%CC_SELF%% as a disconnect notify target"},
	{"20191015", "Support for the && sub-command specifier"},
}

// ProtoCaps returns the capability list.
func ProtoCaps() []ProtoCap {
	return protoCaps
}
