package apns

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// CommandSimple is the command byte of the simple notification format.
	CommandSimple = 0
	// TokenSize is the binary length of a device token.
	TokenSize = 32
	// MaxPayloadSize is the largest payload the gateway accepts.
	MaxPayloadSize = 256
	// FrameHeaderSize is command + token length + token + payload length.
	FrameHeaderSize = 1 + 2 + TokenSize + 2
	// FeedbackRecordSize is timestamp + token length + token.
	FeedbackRecordSize = 4 + 2 + TokenSize
)

// FeedbackRecord is a device token the feedback service reported as no
// longer reachable, with the time the service recorded it.
type FeedbackRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	DeviceToken string    `json:"device_token"`
}

// NormalizeToken returns the canonical lowercase form of a hex device
// token, the form DecodeFeedbackRecord produces. ParseToken accepts any
// casing and surrounding space, so tokens are compared in this form.
func NormalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// ParseToken converts a hex device token into its binary form.
func ParseToken(token string) ([]byte, error) {
	bin, err := hex.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(bin) != TokenSize {
		return nil, fmt.Errorf("%w: length %d != %d", ErrInvalidToken, len(bin), TokenSize)
	}
	return bin, nil
}

// EncodeNotification packs a device token and payload into one frame of the
// simple notification format.
func EncodeNotification(token, payload []byte) ([]byte, error) {
	if len(token) != TokenSize {
		return nil, fmt.Errorf("%w: length %d != %d", ErrInvalidToken, len(token), TokenSize)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := bytes.NewBuffer(make([]byte, 0, FrameHeaderSize+len(payload)))
	_ = binary.Write(frame, binary.BigEndian, uint8(CommandSimple))
	_ = binary.Write(frame, binary.BigEndian, uint16(TokenSize))
	frame.Write(token)
	_ = binary.Write(frame, binary.BigEndian, uint16(len(payload)))
	frame.Write(payload)

	return frame.Bytes(), nil
}

// DecodeFrame splits a frame produced by EncodeNotification back into its
// token and payload.
func DecodeFrame(frame []byte) (token, payload []byte, err error) {
	if len(frame) < FrameHeaderSize {
		return nil, nil, fmt.Errorf("apns: frame too short: %d bytes", len(frame))
	}
	if frame[0] != CommandSimple {
		return nil, nil, fmt.Errorf("apns: unexpected command %d", frame[0])
	}
	if n := binary.BigEndian.Uint16(frame[1:3]); n != TokenSize {
		return nil, nil, fmt.Errorf("apns: unexpected token length %d", n)
	}
	token = frame[3 : 3+TokenSize]

	n := int(binary.BigEndian.Uint16(frame[3+TokenSize : FrameHeaderSize]))
	if len(frame) != FrameHeaderSize+n {
		return nil, nil, fmt.Errorf("apns: payload length %d does not match frame size %d", n, len(frame))
	}
	return token, frame[FrameHeaderSize:], nil
}

// DecodeFeedbackRecord parses exactly one fixed-width feedback chunk.
func DecodeFeedbackRecord(chunk []byte) (FeedbackRecord, error) {
	if len(chunk) < FeedbackRecordSize {
		return FeedbackRecord{}, fmt.Errorf("%w: %d < %d bytes", ErrMalformedRecord, len(chunk), FeedbackRecordSize)
	}

	ts := binary.BigEndian.Uint32(chunk[0:4])
	n := int(binary.BigEndian.Uint16(chunk[4:6]))
	if n > TokenSize {
		return FeedbackRecord{}, fmt.Errorf("%w: token length %d", ErrMalformedRecord, n)
	}

	return FeedbackRecord{
		Timestamp:   time.Unix(int64(ts), 0).UTC(),
		DeviceToken: hex.EncodeToString(chunk[6 : 6+n]),
	}, nil
}
