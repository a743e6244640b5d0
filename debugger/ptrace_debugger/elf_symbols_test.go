//go:build linux

package ptrace_debugger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleMaps = `00400000-00452000 r-xp 00000000 08:02 173521 /usr/bin/target
00651000-00652000 r--p 00051000 08:02 173521 /usr/bin/target
00652000-00655000 rw-p 00052000 08:02 173521 /usr/bin/target
00e03000-00e24000 rw-p 00000000 00:00 0 [heap]
7f8a14000000-7f8a141c0000 r-xp 00000000 08:02 135522 /usr/lib/libc.so.6
7f8a141c0000-7f8a143bf000 ---p 001c0000 08:02 135522 /usr/lib/libc.so.6
7f8a143bf000-7f8a143c3000 r--p 001bf000 08:02 135522 /usr/lib/libc.so.6
7f8a14400000-7f8a14426000 r-xp 00000000 08:02 135401 /usr/lib/ld-linux-x86-64.so.2
7ffc04b00000-7ffc04b21000 rw-p 00000000 00:00 0 [stack]
ffffffffff600000-ffffffffff601000 r-xp 00000000 00:00 0 [vsyscall]
zzz-bad 0 garbage line
`

func TestParseMapsData(t *testing.T) {
	regions := parseMapsData([]byte(sampleMaps))
	assert.Equal(t, 10, len(regions))
	assert.Equal(t, uint64(0x00400000), regions[0].start)
	assert.Equal(t, uint64(0x00452000), regions[0].end)
	assert.Equal(t, uint64(0), regions[0].offset)
	assert.Equal(t, "/usr/bin/target", regions[0].path)
	assert.Equal(t, uint64(0x001bf000), regions[6].offset)
	assert.Equal(t, "[heap]", regions[3].path)
}

func TestImageBases(t *testing.T) {
	order, bases := imageBases(parseMapsData([]byte(sampleMaps)))
	// 只有绝对路径且偏移为0的映射算映像基址，按出现顺序返回
	assert.Equal(t, []string{
		"/usr/bin/target",
		"/usr/lib/libc.so.6",
		"/usr/lib/ld-linux-x86-64.so.2",
	}, order)
	assert.Equal(t, uint64(0x00400000), bases["/usr/bin/target"])
	assert.Equal(t, uint64(0x7f8a14000000), bases["/usr/lib/libc.so.6"])
	assert.Equal(t, uint64(0x7f8a14400000), bases["/usr/lib/ld-linux-x86-64.so.2"])
	// [heap]和[stack]不是映像
	_, ok := bases["[heap]"]
	assert.False(t, ok)
}

func TestParseMapsDataEmpty(t *testing.T) {
	assert.Nil(t, parseMapsData(nil))
	assert.Nil(t, parseMapsData([]byte("\n\n")))
}
