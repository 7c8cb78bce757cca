package hdlcap_test

import (
	"bytes"
	"encoding/hex"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/m-mizutani/hdlcap/pkg/hdlcap"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	velodyneHeaderBlock  = "ffffffffffff60768820118c0800450004d200004000ff11b4a9c0a801c9ffffffff0940094004be0000"
	recordLengthSuffix   = "e0040000e0040000"
	sampleDatagramLength = 1206
)

func newSamplePayload(sec, nsec uint32, fill byte) *hdlcap.RawPayload {
	return &hdlcap.RawPayload{
		Timestamp: hdlcap.Timestamp{Sec: sec, Nsec: nsec},
		Data:      bytes.Repeat([]byte{fill}, sampleDatagramLength),
	}
}

func newDefaultEncoder(t *testing.T) *hdlcap.RecordEncoder {
	enc, err := hdlcap.NewRecordEncoder(hdlcap.EncoderArguments{})
	require.NoError(t, err)
	return enc
}

func TestEncoderHeaderBlock(t *testing.T) {
	enc := newDefaultEncoder(t)
	assert.Equal(t, velodyneHeaderBlock, hex.EncodeToString(enc.HeaderBlock()))
}

func TestEncoderRecordLength(t *testing.T) {
	enc := newDefaultEncoder(t)

	for _, length := range []int{0, 1, 100, sampleDatagramLength, 1500} {
		p := &hdlcap.RawPayload{Data: make([]byte, length)}
		rec, err := enc.Encode(p)
		require.NoError(t, err)
		assert.Equal(t, 16+42+length, len(rec))
		assert.Equal(t, len(rec), enc.RecordLength(p))
	}
}

func TestEncoderTimestamp(t *testing.T) {
	enc := newDefaultEncoder(t)

	rec, err := enc.Encode(&hdlcap.RawPayload{
		Timestamp: hdlcap.Timestamp{Sec: 0x01020304, Nsec: 0x05060708},
		Data:      make([]byte, sampleDatagramLength),
	})
	require.NoError(t, err)
	assert.Equal(t, "0102030405060708"+recordLengthSuffix, hex.EncodeToString(rec[:16]))
}

func TestEncoderLayout(t *testing.T) {
	enc := newDefaultEncoder(t)

	p1 := newSamplePayload(100, 200, 0x00)
	p2 := newSamplePayload(101, 0, 0xff)

	r1, err := enc.Encode(p1)
	require.NoError(t, err)
	r2, err := enc.Encode(p2)
	require.NoError(t, err)

	assert.Equal(t, "00000064000000c8", hex.EncodeToString(r1[:8]))
	assert.Equal(t, "0000006500000000", hex.EncodeToString(r2[:8]))
	assert.Equal(t, r1[8:58], r2[8:58])
	assert.Equal(t, velodyneHeaderBlock, hex.EncodeToString(r1[16:58]))
	assert.Equal(t, p1.Data, r1[58:])
	assert.Equal(t, p2.Data, r2[58:])
}

func TestEncoderDecodableByGopacket(t *testing.T) {
	enc := newDefaultEncoder(t)
	rec, err := enc.Encode(newSamplePayload(1, 2, 0xab))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(rec[hdlcap.RecordHeaderLength:], layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	assert.Equal(t, "60:76:88:20:11:8c", eth.SrcMAC.String())
	assert.Equal(t, "ff:ff:ff:ff:ff:ff", eth.DstMAC.String())

	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.201", ip.SrcIP.String())
	assert.Equal(t, "255.255.255.255", ip.DstIP.String())
	assert.Equal(t, uint16(20+8+sampleDatagramLength), ip.Length)
	assert.Equal(t, uint8(255), ip.TTL)
	assert.Equal(t, layers.IPProtocolUDP, ip.Protocol)

	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, layers.UDPPort(2368), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(2368), udp.DstPort)
	assert.Equal(t, uint16(8+sampleDatagramLength), udp.Length)
	assert.Equal(t, uint16(0), udp.Checksum)
	assert.Equal(t, bytes.Repeat([]byte{0xab}, sampleDatagramLength), udp.Payload)
}

func TestEncoderCustomAddress(t *testing.T) {
	enc, err := hdlcap.NewRecordEncoder(hdlcap.EncoderArguments{
		DatagramSize: 512,
		SrcIP:        net.IPv4(10, 0, 0, 1),
		DstIP:        net.IPv4(10, 0, 0, 2),
		SrcPort:      8308,
		DstPort:      8309,
	})
	require.NoError(t, err)
	assert.Equal(t, 512, enc.DatagramSize())

	rec, err := enc.Encode(&hdlcap.RawPayload{Data: make([]byte, 512)})
	require.NoError(t, err)

	// captured and original length: 42 + 512 = 554 = 0x022a
	assert.Equal(t, "2a0200002a020000", hex.EncodeToString(rec[8:16]))

	pkt := gopacket.NewPacket(rec[hdlcap.RecordHeaderLength:], layers.LayerTypeEthernet, gopacket.Default)
	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.Equal(t, "10.0.0.1", ip.SrcIP.String())
	assert.Equal(t, "10.0.0.2", ip.DstIP.String())
	udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, layers.UDPPort(8308), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(8309), udp.DstPort)
}

func TestEncoderLengthPolicy(t *testing.T) {
	short := &hdlcap.RawPayload{Data: make([]byte, 100)}

	t.Run("permissive keeps fixed length fields", func(t *testing.T) {
		enc, err := hdlcap.NewRecordEncoder(hdlcap.EncoderArguments{
			LengthPolicy: hdlcap.LengthPolicyPermissive,
		})
		require.NoError(t, err)
		rec, err := enc.Encode(short)
		require.NoError(t, err)
		assert.Equal(t, recordLengthSuffix, hex.EncodeToString(rec[8:16]))
		assert.Equal(t, 16+42+100, len(rec))
	})

	t.Run("actual uses payload length", func(t *testing.T) {
		enc, err := hdlcap.NewRecordEncoder(hdlcap.EncoderArguments{
			LengthPolicy: hdlcap.LengthPolicyActual,
		})
		require.NoError(t, err)
		rec, err := enc.Encode(short)
		require.NoError(t, err)
		// 42 + 100 = 142 = 0x8e
		assert.Equal(t, "8e0000008e000000", hex.EncodeToString(rec[8:16]))
		assert.Equal(t, velodyneHeaderBlock, hex.EncodeToString(rec[16:58]))
	})

	t.Run("strict rejects mismatched payload", func(t *testing.T) {
		enc, err := hdlcap.NewRecordEncoder(hdlcap.EncoderArguments{
			LengthPolicy: hdlcap.LengthPolicyStrict,
		})
		require.NoError(t, err)

		dst := []byte{0x01}
		out, err := enc.AppendRecord(dst, short)
		require.Error(t, err)
		assert.True(t, errors.Is(err, hdlcap.ErrMalformedPayload))
		assert.Equal(t, []byte{0x01}, out)

		rec, err := enc.Encode(newSamplePayload(0, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, 16+42+sampleDatagramLength, len(rec))
	})
}

func TestEncoderInvalidArguments(t *testing.T) {
	_, err := hdlcap.NewRecordEncoder(hdlcap.EncoderArguments{LengthPolicy: "loose"})
	assert.True(t, errors.Is(err, hdlcap.ErrConfiguration))

	_, err = hdlcap.NewRecordEncoder(hdlcap.EncoderArguments{DatagramSize: -1})
	assert.True(t, errors.Is(err, hdlcap.ErrConfiguration))

	_, err = hdlcap.NewRecordEncoder(hdlcap.EncoderArguments{DatagramSize: 70000})
	assert.True(t, errors.Is(err, hdlcap.ErrConfiguration))
}
