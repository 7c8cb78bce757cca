package hdlcap

import "time"

// Timestamp is capture time of a sensor datagram.
type Timestamp struct {
	Sec  uint32
	Nsec uint32
}

// NewTimestamp converts time.Time to Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{
		Sec:  uint32(t.Unix()),
		Nsec: uint32(t.Nanosecond()),
	}
}

// RawPayload is one raw data block of the sensor with capture timestamp.
type RawPayload struct {
	Timestamp Timestamp
	Data      []byte
}

// PacketBatch is a unit of delivery from a source, e.g. one rotation of the sensor.
type PacketBatch struct {
	Packets []*RawPayload
}

func newRawPayload(buf []byte, length int, ts time.Time) *RawPayload {
	pkt := new(RawPayload)
	pkt.Timestamp = NewTimestamp(ts)

	pkt.Data = make([]byte, length)
	copy(pkt.Data, buf)

	return pkt
}
