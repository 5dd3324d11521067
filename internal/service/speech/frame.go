package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎二进制协议：4字节头 + 可选序号/事件 + payload size + payload
const protocolVersion = 0b0001

// MessageType 帧类型
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	AudioOnlyRequest        MessageType = 0b0010
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// Flags 帧标志位，低两位表示序号，0b0100 表示携带事件
type Flags uint8

const (
	NoSequence       Flags = 0b0000
	PositiveSequence Flags = 0b0001
	LastNoSequence   Flags = 0b0010
	NegativeSequence Flags = 0b0011
	WithEvent        Flags = 0b0100
)

// Serialization payload 序列化方式
type Serialization uint8

const (
	RawPayload  Serialization = 0b0000
	JSONPayload Serialization = 0b0001
)

// Compression payload 压缩方式
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

// Event 服务端事件
type Event int32

const (
	EventNone               Event = 0
	EventStartConnection    Event = 1
	EventFinishConnection   Event = 2
	EventConnectionStarted  Event = 50
	EventConnectionFailed   Event = 51
	EventConnectionFinished Event = 52
	EventSessionStarted     Event = 150
	EventSessionFinished    Event = 152
	EventSessionFailed      Event = 153
)

// Header 帧头
type Header struct {
	Type          MessageType
	Flags         Flags
	Serialization Serialization
	Compression   Compression
	Size          uint8 // 以4字节为单位
}

// Frame 一帧完整消息
type Frame struct {
	Header    Header
	Sequence  int32
	Event     Event
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (f *Frame) hasSequence() bool {
	switch f.Header.Flags & 0b0011 {
	case PositiveSequence, NegativeSequence:
		return true
	}
	return false
}

func (f *Frame) hasEvent() bool { return f.Header.Flags&WithEvent == WithEvent }

// Last reports whether the frame closes the stream.
func (f *Frame) Last() bool {
	switch f.Header.Flags & 0b0011 {
	case LastNoSequence, NegativeSequence:
		return true
	}
	return false
}

// Encode 序列化为二进制帧
func (f *Frame) Encode() []byte {
	size := f.Header.Size
	if size == 0 {
		size = 1
	}
	buf := make([]byte, 0, 16+len(f.Payload))
	buf = append(buf,
		protocolVersion<<4|size,
		uint8(f.Header.Type)<<4|uint8(f.Header.Flags),
		uint8(f.Header.Serialization)<<4|uint8(f.Header.Compression),
		0,
	)
	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}
	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Event))
		if !connectionEvent(f.Event) {
			buf = appendString(buf, f.SessionID)
		}
		if carriesConnectID(f.Event) {
			buf = appendString(buf, f.ConnectID)
		}
	}
	if f.Header.Type == ErrorMessage {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...)
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// DecodeFrame 解析二进制帧
func DecodeFrame(data []byte) (*Frame, error) {
	r := bytes.NewReader(data)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if v := head[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", v)
	}

	f := &Frame{Header: Header{
		Size:          head[0] & 0x0F,
		Type:          MessageType(head[1] >> 4),
		Flags:         Flags(head[1] & 0x0F),
		Serialization: Serialization(head[2] >> 4),
		Compression:   Compression(head[2] & 0x0F),
	}}

	if extra := int(f.Header.Size)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	if f.hasSequence() {
		seq, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
		f.Sequence = int32(seq)
	}

	if f.hasEvent() {
		ev, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		f.Event = Event(int32(ev))
		if !connectionEvent(f.Event) {
			if f.SessionID, err = readString(r); err != nil {
				return nil, fmt.Errorf("read session id: %w", err)
			}
		}
		if carriesConnectID(f.Event) {
			if f.ConnectID, err = readString(r); err != nil {
				return nil, fmt.Errorf("read connect id: %w", err)
			}
		}
	}

	if f.Header.Type == ErrorMessage {
		code, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
		f.ErrorCode = code
	}

	size, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	if size > 0 {
		if int64(size) > int64(r.Len()) {
			return nil, fmt.Errorf("payload truncated: want %d bytes, have %d", size, r.Len())
		}
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	return f, nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("string truncated: want %d bytes, have %d", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func connectionEvent(e Event) bool {
	switch e {
	case EventStartConnection, EventFinishConnection,
		EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

func carriesConnectID(e Event) bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

// requestFrame 带 JSON 参数的首帧
func requestFrame(payload []byte, compression Compression) *Frame {
	return &Frame{
		Header: Header{
			Type:          FullClientRequest,
			Flags:         NoSequence,
			Serialization: JSONPayload,
			Compression:   compression,
		},
		Payload: payload,
	}
}

// audioFrame 音频分包，最后一包使用负序号
func audioFrame(chunk []byte, seq int32, last bool, compression Compression) *Frame {
	flags := PositiveSequence
	switch {
	case last && seq != 0:
		flags = NegativeSequence
		seq = -seq
	case last:
		flags = LastNoSequence
	case seq <= 0:
		flags = NoSequence
	}
	return &Frame{
		Header: Header{
			Type:          AudioOnlyRequest,
			Flags:         flags,
			Serialization: RawPayload,
			Compression:   compression,
		},
		Sequence: seq,
		Payload:  chunk,
	}
}

func compress(data []byte, method Compression) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported compression method: %d", method)
}

func decompress(data []byte, method Compression) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported compression method: %d", method)
}
