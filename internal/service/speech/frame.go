package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎 SAUC 二进制帧：4 字节头 + 可选序号 + 4 字节载荷长度 + 载荷。
const frameVersion = 0b0001

type frameType uint8

const (
	frameFullClientRequest  frameType = 0b0001
	frameAudioOnlyRequest   frameType = 0b0010
	frameFullServerResponse frameType = 0b1001
	frameServerError        frameType = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence       frameFlags = 0b0000
	flagPositiveSequence frameFlags = 0b0001
	flagLastNoSequence   frameFlags = 0b0010
	flagNegativeSequence frameFlags = 0b0011
)

const (
	serializationNone = 0b0000
	serializationJSON = 0b0001

	compressionNone = 0b0000
	compressionGzip = 0b0001
)

// frame 是一条已解码的 ASR 消息。
type frame struct {
	Type          frameType
	Flags         frameFlags
	Serialization uint8
	Compression   uint8
	Sequence      int32
	ErrorCode     uint32
	Payload       []byte
}

func (f frame) hasSequence() bool {
	return f.Flags == flagPositiveSequence || f.Flags == flagNegativeSequence
}

// isLast 判断服务端是否已发送最后一包。
func (f frame) isLast() bool {
	return f.Flags == flagLastNoSequence || f.Flags == flagNegativeSequence
}

func (f frame) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(frameVersion<<4 | 0b0001)
	buf.WriteByte(uint8(f.Type)<<4 | uint8(f.Flags))
	buf.WriteByte(f.Serialization<<4 | f.Compression)
	buf.WriteByte(0)

	if f.hasSequence() {
		_ = binary.Write(&buf, binary.BigEndian, f.Sequence)
	}
	if f.Type == frameServerError {
		_ = binary.Write(&buf, binary.BigEndian, f.ErrorCode)
	}
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(f.Payload)))
	buf.Write(f.Payload)
	return buf.Bytes()
}

func decodeFrame(data []byte) (frame, error) {
	if len(data) < 4 {
		return frame{}, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if version := data[0] >> 4; version != frameVersion {
		return frame{}, fmt.Errorf("unsupported protocol version: %d", version)
	}

	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || len(data) < headerSize {
		return frame{}, fmt.Errorf("invalid header size %d", headerSize)
	}

	f := frame{
		Type:          frameType(data[1] >> 4),
		Flags:         frameFlags(data[1] & 0x0F),
		Serialization: data[2] >> 4,
		Compression:   data[2] & 0x0F,
	}

	r := bytes.NewReader(data[headerSize:])
	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return frame{}, fmt.Errorf("read sequence: %w", err)
		}
	}
	if f.Type == frameServerError {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return frame{}, fmt.Errorf("read error code: %w", err)
		}
	}

	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return frame{}, fmt.Errorf("read payload size: %w", err)
	}
	if int64(size) > int64(r.Len()) {
		return frame{}, fmt.Errorf("payload size %d exceeds remaining %d bytes", size, r.Len())
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return frame{}, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
		}
	}
	return f, nil
}

// payload 返回解压后的载荷。
func (f frame) payload() ([]byte, error) {
	switch f.Compression {
	case compressionNone:
		return f.Payload, nil
	case compressionGzip:
		return gunzip(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.Compression)
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}

// audioFrame 构造音频分包，最后一包使用负序号。
func audioFrame(chunk []byte, sequence int32, last bool) (frame, error) {
	compressed, err := gzipBytes(chunk)
	if err != nil {
		return frame{}, err
	}
	f := frame{
		Type:          frameAudioOnlyRequest,
		Flags:         flagPositiveSequence,
		Serialization: serializationNone,
		Compression:   compressionGzip,
		Sequence:      sequence,
		Payload:       compressed,
	}
	if last {
		f.Flags = flagNegativeSequence
		f.Sequence = -sequence
	}
	return f, nil
}
