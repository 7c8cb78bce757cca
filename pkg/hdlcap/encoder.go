package hdlcap

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

const (
	// DefaultDatagramSize is size of a HDL data packet (12 firing blocks, gps timestamp, factory bytes).
	DefaultDatagramSize = 1206

	// DefaultHDLPort is UDP port of HDL data packets.
	DefaultHDLPort = 2368

	recordHeaderLength = 16
	headerBlockLength  = 14 + 20 + 8
	ipv4TTL            = 255
)

// Length policies for captured/original length fields of record header.
const (
	LengthPolicyPermissive = "permissive"
	LengthPolicyActual     = "actual"
	LengthPolicyStrict     = "strict"
)

var (
	defaultSrcMAC = net.HardwareAddr{0x60, 0x76, 0x88, 0x20, 0x11, 0x8c}
	defaultDstMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	defaultSrcIP  = net.IPv4(192, 168, 1, 201)
	defaultDstIP  = net.IPv4bcast

	// placeholder of timestamp field, overwritten by every record
	recordTimestampPlaceholder = [8]byte{0xf5, 0x40, 0xe0, 0x51, 0x87, 0x2a, 0x01, 0x00}
)

// EncoderArguments is for construction of RecordEncoder. Zero values are
// replaced with geometry of HDL sensor.
type EncoderArguments struct {
	DatagramSize int
	LengthPolicy string

	SrcMAC  net.HardwareAddr
	DstMAC  net.HardwareAddr
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
}

// RecordEncoder converts RawPayload to pcap record: record header, fixed
// Ethernet/IPv4/UDP header block and the payload.
type RecordEncoder struct {
	datagramSize int
	lengthPolicy string
	template     [recordHeaderLength]byte
	headerBlock  [headerBlockLength]byte
}

// NewRecordEncoder builds the record header template and header block once.
func NewRecordEncoder(args EncoderArguments) (*RecordEncoder, error) {
	enc := &RecordEncoder{
		datagramSize: DefaultDatagramSize,
		lengthPolicy: LengthPolicyPermissive,
	}

	if args.DatagramSize < 0 {
		return nil, configError("DatagramSize must not be negative: %d", args.DatagramSize)
	}
	if args.DatagramSize > 0 {
		enc.datagramSize = args.DatagramSize
	}
	// IPv4 total length is uint16
	if enc.datagramSize > 0xffff-28 {
		return nil, configError("DatagramSize is too large: %d", enc.datagramSize)
	}

	switch args.LengthPolicy {
	case "":
	case LengthPolicyPermissive, LengthPolicyActual, LengthPolicyStrict:
		enc.lengthPolicy = args.LengthPolicy
	default:
		return nil, configError("Invalid length policy: %s", args.LengthPolicy)
	}

	copy(enc.template[:8], recordTimestampPlaceholder[:])
	recordLen := uint32(headerBlockLength + enc.datagramSize)
	binary.LittleEndian.PutUint32(enc.template[8:12], recordLen)
	binary.LittleEndian.PutUint32(enc.template[12:16], recordLen)

	block, err := buildHeaderBlock(args, enc.datagramSize)
	if err != nil {
		return nil, err
	}
	copy(enc.headerBlock[:], block)

	return enc, nil
}

func buildHeaderBlock(args EncoderArguments, datagramSize int) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       defaultSrcMAC,
		DstMAC:       defaultDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		Flags:    layers.IPv4DontFragment,
		TTL:      ipv4TTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    defaultSrcIP,
		DstIP:    defaultDstIP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(DefaultHDLPort),
		DstPort: layers.UDPPort(DefaultHDLPort),
	}

	if args.SrcMAC != nil {
		eth.SrcMAC = args.SrcMAC
	}
	if args.DstMAC != nil {
		eth.DstMAC = args.DstMAC
	}
	if args.SrcIP != nil {
		ip.SrcIP = args.SrcIP
	}
	if args.DstIP != nil {
		ip.DstIP = args.DstIP
	}
	if args.SrcPort != 0 {
		udp.SrcPort = layers.UDPPort(args.SrcPort)
	}
	if args.DstPort != 0 {
		udp.DstPort = layers.UDPPort(args.DstPort)
	}

	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, errors.Wrap(err, "Fail to set network layer for UDP checksum")
	}

	// Serialize with a dummy payload of the datagram size to fix lengths and IPv4 checksum.
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	payload := gopacket.Payload(make([]byte, datagramSize))
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload); err != nil {
		return nil, configError("Fail to serialize header block: %v", err)
	}

	block := make([]byte, headerBlockLength)
	copy(block, buf.Bytes()[:headerBlockLength])

	// UDP checksum 0: not computed
	block[headerBlockLength-2] = 0
	block[headerBlockLength-1] = 0

	return block, nil
}

// DatagramSize returns expected payload length.
func (x *RecordEncoder) DatagramSize() int { return x.datagramSize }

// RecordLength returns length of encoded record for the payload.
func (x *RecordEncoder) RecordLength(p *RawPayload) int {
	return recordHeaderLength + headerBlockLength + len(p.Data)
}

// HeaderBlock returns a copy of the fixed Ethernet/IPv4/UDP header block.
func (x *RecordEncoder) HeaderBlock() []byte {
	block := make([]byte, headerBlockLength)
	copy(block, x.headerBlock[:])
	return block
}

// Encode returns a new pcap record of the payload.
func (x *RecordEncoder) Encode(p *RawPayload) ([]byte, error) {
	return x.AppendRecord(make([]byte, 0, x.RecordLength(p)), p)
}

// AppendRecord appends pcap record of the payload to dst. dst is not modified
// when the payload is rejected.
func (x *RecordEncoder) AppendRecord(dst []byte, p *RawPayload) ([]byte, error) {
	if x.lengthPolicy == LengthPolicyStrict && len(p.Data) != x.datagramSize {
		return dst, errors.Wrapf(ErrMalformedPayload, "payload length %d, expected %d",
			len(p.Data), x.datagramSize)
	}

	hdr := x.template
	// Seconds and nanoseconds as 8 hex digits each in the original format,
	// which is big-endian on the wire.
	binary.BigEndian.PutUint32(hdr[0:4], p.Timestamp.Sec)
	binary.BigEndian.PutUint32(hdr[4:8], p.Timestamp.Nsec)

	if x.lengthPolicy == LengthPolicyActual {
		recordLen := uint32(headerBlockLength + len(p.Data))
		binary.LittleEndian.PutUint32(hdr[8:12], recordLen)
		binary.LittleEndian.PutUint32(hdr[12:16], recordLen)
	}

	dst = append(dst, hdr[:]...)
	dst = append(dst, x.headerBlock[:]...)
	dst = append(dst, p.Data...)
	return dst, nil
}
