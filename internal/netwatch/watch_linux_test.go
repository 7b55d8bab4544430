package netwatch

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func netlinkMessage(typ uint16) []byte {
	b := make([]byte, unix.SizeofNlMsghdr)
	binary.NativeEndian.PutUint32(b[0:4], unix.SizeofNlMsghdr)
	binary.NativeEndian.PutUint16(b[4:6], typ)
	return b
}

func TestRelevantNetlink(t *testing.T) {
	assert.True(t, relevantNetlink(netlinkMessage(unix.RTM_NEWADDR)))
	assert.True(t, relevantNetlink(netlinkMessage(unix.RTM_DELROUTE)))
	assert.True(t, relevantNetlink(append(netlinkMessage(unix.NLMSG_NOOP), netlinkMessage(unix.RTM_NEWLINK)...)))
	assert.False(t, relevantNetlink(netlinkMessage(unix.NLMSG_NOOP)))
	assert.False(t, relevantNetlink([]byte{1, 2, 3}))
	assert.False(t, relevantNetlink(nil))
}
