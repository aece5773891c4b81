package rcon

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Source RCON packet types. Auth responses and command responses share
// the value 2; direction disambiguates them.
const (
	typeResponseValue int32 = 0
	typeAuthResponse  int32 = 2
	typeExecCommand   int32 = 2
	typeAuth          int32 = 3
)

// Wire sizes: the length prefix counts id + type + body + two null
// terminators, but not itself.
const (
	packetHeaderSize  = 10
	maxPacketBodySize = 1 << 20
)

type packet struct {
	ID   int32
	Type int32
	Body string
}

func writePacket(w io.Writer, p packet) error {
	size := int32(packetHeaderSize + len(p.Body))
	buf := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.ID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Type))
	copy(buf[12:], p.Body)
	// Last two bytes stay zero: body terminator plus packet terminator.
	_, err := w.Write(buf)
	return err
}

func readPacket(r io.Reader) (packet, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return packet{}, err
	}
	size := int32(binary.LittleEndian.Uint32(sizeBuf[:]))
	if size < packetHeaderSize || size > packetHeaderSize+maxPacketBodySize {
		return packet{}, fmt.Errorf("rcon: invalid packet size %d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return packet{}, err
	}

	p := packet{
		ID:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		Type: int32(binary.LittleEndian.Uint32(buf[4:8])),
		Body: string(buf[8 : size-2]),
	}
	if buf[size-2] != 0 || buf[size-1] != 0 {
		return packet{}, fmt.Errorf("rcon: packet missing null terminators")
	}
	return p, nil
}
