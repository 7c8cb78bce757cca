package hdlcap

import "encoding/binary"

const (
	hdlFiringPerPacket = 12
	hdlFiringBlockSize = 2 + 2 + 32*3

	// DefaultMaxBundlePackets caps a bundle if rotation is never detected.
	DefaultMaxBundlePackets = 4096
)

// bundler groups HDL data packets into one batch per sensor rotation. A rotation
// ends when rotational position of a firing block goes back.
type bundler struct {
	datagramSize int
	maxPackets   int
	lastAzimuth  uint16
	current      []*RawPayload
}

func newBundler(datagramSize, maxPackets int) *bundler {
	if datagramSize <= 0 {
		datagramSize = DefaultDatagramSize
	}
	if maxPackets <= 0 {
		maxPackets = DefaultMaxBundlePackets
	}
	return &bundler{
		datagramSize: datagramSize,
		maxPackets:   maxPackets,
	}
}

func (x *bundler) split() *PacketBatch {
	if len(x.current) == 0 {
		return nil
	}
	batch := &PacketBatch{Packets: x.current}
	x.current = nil
	return batch
}

// add returns completed batch if the packet starts a new rotation, or nil.
// The packet itself always goes to the next bundle.
func (x *bundler) add(pkt *RawPayload) *PacketBatch {
	var done *PacketBatch

	if len(pkt.Data) >= hdlFiringPerPacket*hdlFiringBlockSize {
		for i := 0; i < hdlFiringPerPacket; i++ {
			offset := i*hdlFiringBlockSize + 2
			azimuth := binary.LittleEndian.Uint16(pkt.Data[offset : offset+2])
			if azimuth < x.lastAzimuth && done == nil {
				done = x.split()
			}
			x.lastAzimuth = azimuth
		}
	}

	if done == nil && len(x.current) >= x.maxPackets {
		done = x.split()
	}

	x.current = append(x.current, pkt)
	return done
}

// flush returns packets not yet bundled.
func (x *bundler) flush() *PacketBatch {
	return x.split()
}
