package vpi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusToError(t *testing.T) {
	require.NoError(t, StatusToError(0))

	err := StatusToError(-3)
	require.Error(t, err)
	var status Status
	require.True(t, errors.As(err, &status))
	require.Equal(t, StatusInvalidParam, status)
	require.Equal(t, "vpi: invalid parameter (-3)", err.Error())
	require.Equal(t, "unknown status -42", Status(-42).String())
}

func TestPluginFromString(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Plugin
	}{
		{"h264", PluginH264Decoder},
		{"h264_dec", PluginH264Decoder},
		{"h265", PluginHEVCDecoder},
		{"vp9_dec", PluginVP9Decoder},
		{"hwdownload", PluginHWDownload},
	} {
		p, err := PluginFromString(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.out, p, tc.in)
	}
	_, err := PluginFromString("mpeg2")
	require.Error(t, err)
	require.False(t, PluginHWDownload.IsDecoder())
	require.True(t, PluginVP9Decoder.IsDecoder())
}

func TestPacketConsume(t *testing.T) {
	pkt := &Packet{Data: make([]byte, 10), Size: 10}
	pkt.Consume(4)
	require.Equal(t, 6, pkt.Size)
	require.Len(t, pkt.Data, 6)
	pkt.Consume(100)
	require.Equal(t, 0, pkt.Size)
	require.Len(t, pkt.Data, 0)
}
