package hdlcap

// Processor receives batches from HDLCap.
type Processor interface {
	Put(batch *PacketBatch) error
	Shutdown() error
}

// PacketProcessor controls both of encoder (record builder) and emitter (output sink)
// through CaptureWriter. It works as interface of batch processing by Put() function.
type PacketProcessor struct {
	argument PacketProcessorArgument
	writer   *CaptureWriter
}

// PacketProcessorArgument is argument to construct new PacketProcessor
type PacketProcessorArgument struct {
	EncoderArgs EncoderArguments
	EmitterArgs EmitterArguments

	// Observer is notified after every batch. Total count is logged if nil.
	Observer ProgressObserver
}

// NewPacketProcessor is constructor of PacketProcessor. Not only creating instance
// but also opening the capture file and writing its global header.
func NewPacketProcessor(args PacketProcessorArgument) (*PacketProcessor, error) {
	if args.EmitterArgs.Name == "" {
		args.EmitterArgs.Name = "fs"
	}

	encoder, err := NewRecordEncoder(args.EncoderArgs)
	if err != nil {
		return nil, err
	}

	emitter, err := newEmitter(args.EmitterArgs)
	if err != nil {
		return nil, err
	}

	writer, err := newCaptureWriter(emitter, encoder, args.Observer)
	if err != nil {
		return nil, err
	}

	proc := PacketProcessor{
		argument: args,
		writer:   writer,
	}

	return &proc, nil
}

// Put method writes a batch to the capture file.
func (x *PacketProcessor) Put(batch *PacketBatch) error {
	if _, err := x.writer.ProcessBatch(batch); err != nil {
		return err
	}

	return nil
}

// Total returns number of written records.
func (x *PacketProcessor) Total() uint64 {
	return x.writer.Total()
}

// Shutdown flushes and closes the capture file.
func (x *PacketProcessor) Shutdown() error {
	return x.writer.Close()
}
