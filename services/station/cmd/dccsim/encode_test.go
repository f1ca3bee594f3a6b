package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/packet"
	"commandstation-go/services/station/internal/wave"
)

func TestParsePacket(t *testing.T) {
	p, err := parsePacket([]string{"03", "0x3F", "3c"}, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x3F, 0x3C}, p.Bytes())

	p, err = parsePacket([]string{"03", "3F"}, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x3F, 0x3C}, p.Bytes())

	_, err = parsePacket([]string{"03", "3F", "00"}, false)
	assert.Equal(t, errcode.BadChecksum, errcode.Of(err))
	_, err = parsePacket([]string{"zz"}, true)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

func TestEncodeScenario(t *testing.T) {
	p, err := packet.New(0x03, 0x3F, 0x3C)
	require.NoError(t, err)
	halves, err := encode(p, wave.DefaultTiming, 16)
	require.NoError(t, err)

	require.Len(t, halves, 88)
	assert.Equal(t, "1111111111111111 0 00000011 0 00111111 0 00111100 1", render(halves, wave.DefaultTiming, 16))
	// 29 ones, 15 zeros
	assert.Equal(t, 29*2*58*time.Microsecond+15*2*100*time.Microsecond, total(halves))

	d := wave.NewDecoder(wave.DefaultTiming, wave.MinPreambleMain)
	var got []packet.Packet
	for _, h := range halves {
		if q, ok := d.Feed(h.high, h.d); ok {
			got = append(got, q)
		}
	}
	assert.Equal(t, []packet.Packet{p}, got)
}

func TestEncodeRejectsShortPreamble(t *testing.T) {
	_, err := encode(packet.Idle(), wave.DefaultTiming, 8)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

func TestEncodeCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"encode", "--checksum", "FF", "00"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "packet:   FF 00 FF")
	assert.Contains(t, out.String(), "halves:   88")
}
