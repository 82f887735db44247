// Package wire implements the outer/inner frame codec for the MT4 Web
// Terminal protocol: the 8-byte outer length/type header, the inner
// random/command/(error)/data frame, and the key-selection rule that picks
// AuthKey for command 0 and SessionKey for everything else. Encode/Decode
// are pure functions — no I/O — so they can be exercised with plain byte
// slices in tests and driven by the session state machine in production.
package wire

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"mt4ws/internal/cryptox"
)

// outerHeaderSize is the 4-byte length field plus the 4-byte type field.
const outerHeaderSize = 8

// frameType is the fixed outer-frame type value the reference implementation
// always writes.
const frameType uint32 = 1

// TokenCommand is the command number whose frames use AuthKey instead of
// SessionKey in both directions.
const TokenCommand uint16 = 0

// ErrKind classifies a ProtocolError.
type ErrKind int

const (
	// FrameLengthMismatch means the outer length field didn't match the
	// actual payload length.
	FrameLengthMismatch ErrKind = iota
	// DecryptFailed means the inner frame failed to decrypt — almost
	// always a sign the wrong key was used for the current protocol phase.
	DecryptFailed
	// Truncated means the frame was too short to contain a valid header.
	Truncated
)

func (k ErrKind) String() string {
	switch k {
	case FrameLengthMismatch:
		return "frame length mismatch"
	case DecryptFailed:
		return "decrypt failed"
	case Truncated:
		return "truncated frame"
	default:
		return "unknown"
	}
}

// ProtocolError is returned when a frame is malformed or fails to decrypt.
type ProtocolError struct {
	Kind ErrKind
	Err  error // underlying cause, e.g. a *cryptox.Error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wire: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("wire: %s", e.Kind)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Codec encodes and decodes frames, selecting AuthKey or SessionKey per the
// protocol's key-selection rule. It holds no mutable state once constructed,
// so a single Codec can be shared by the reader and writer goroutines of a
// connection.
type Codec struct {
	auth    *cryptox.Cipher
	session *cryptox.Cipher
}

// NewCodec builds a Codec from the fixed AuthKey and a connection's
// SessionKey. SessionKey may be nil before the session key has arrived from
// the bootstrap (only command-0 frames can be encoded/decoded in that case).
func NewCodec(sessionKey []byte) (*Codec, error) {
	authCipher, err := cryptox.New(cryptox.AuthKey)
	if err != nil {
		return nil, fmt.Errorf("wire: auth cipher: %w", err)
	}

	var sessionCipher *cryptox.Cipher
	if sessionKey != nil {
		sessionCipher, err = cryptox.New(sessionKey)
		if err != nil {
			return nil, fmt.Errorf("wire: session cipher: %w", err)
		}
	}

	return &Codec{auth: authCipher, session: sessionCipher}, nil
}

// cipherFor returns the cipher that must be used for the given command,
// per the key-selection rule in spec §4.2: command 0 always uses AuthKey,
// everything else uses SessionKey.
func (c *Codec) cipherFor(command uint16) (*cryptox.Cipher, error) {
	if command == TokenCommand {
		return c.auth, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("wire: session key not yet established, cannot use command %d", command)
	}
	return c.session, nil
}

// Encode composes the inner frame (random || command || data), encrypts it
// with the key selected by command, and prepends the outer length/type
// header. The outer length field always equals 4 + len(ciphertext), per the
// normative instruction in spec §4.2.
func (c *Codec) Encode(command uint16, data []byte) ([]byte, error) {
	cph, err := c.cipherFor(command)
	if err != nil {
		return nil, err
	}

	inner := make([]byte, 4+len(data))
	randBytes := make([]byte, 2)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, fmt.Errorf("wire: random field: %w", err)
	}
	copy(inner[0:2], randBytes)
	binary.LittleEndian.PutUint16(inner[2:4], command)
	copy(inner[4:], data)

	ciphertext := cph.Encrypt(inner)

	outer := make([]byte, outerHeaderSize+len(ciphertext))
	binary.LittleEndian.PutUint32(outer[0:4], uint32(4+len(ciphertext)))
	binary.LittleEndian.PutUint32(outer[4:8], frameType)
	copy(outer[8:], ciphertext)

	return outer, nil
}

// Decode splits the outer header, decrypts the ciphertext with the key
// selected by the command found inside, and splits the inner header.
// Because the command lives inside the ciphertext, Decode must first
// attempt decryption with SessionKey unless the caller already knows the
// frame is command 0 — callers that are mid-handshake (AwaitingToken) call
// DecodeWithCommand(data, wire.TokenCommand) instead so the right key is
// picked up front.
func (c *Codec) Decode(frame []byte) (command uint16, errorCode byte, data []byte, err error) {
	return c.decode(frame, nil)
}

// DecodeWithCommand decodes a frame known in advance to carry the given
// command (used for the command-0 token response, where the key must be
// selected before the command field can even be read).
func (c *Codec) DecodeWithCommand(frame []byte, expectCommand uint16) (command uint16, errorCode byte, data []byte, err error) {
	return c.decode(frame, &expectCommand)
}

func (c *Codec) decode(frame []byte, expectCommand *uint16) (uint16, byte, []byte, error) {
	if len(frame) < outerHeaderSize {
		return 0, 0, nil, &ProtocolError{Kind: Truncated}
	}

	length := binary.LittleEndian.Uint32(frame[0:4])
	ciphertext := frame[outerHeaderSize:]

	// Accept either length semantics on input (len(ciphertext) or
	// 4+len(ciphertext)); always write the latter on Encode.
	if int(length) != len(ciphertext) && int(length) != 4+len(ciphertext) {
		return 0, 0, nil, &ProtocolError{Kind: FrameLengthMismatch}
	}

	var cph *cryptox.Cipher
	if expectCommand != nil {
		var err error
		cph, err = c.cipherFor(*expectCommand)
		if err != nil {
			return 0, 0, nil, &ProtocolError{Kind: DecryptFailed, Err: err}
		}
	} else {
		// No command hint: any frame received outside the handshake is a
		// SessionKey frame (command 0 replies are always decoded via
		// DecodeWithCommand by the session state machine).
		if c.session == nil {
			return 0, 0, nil, &ProtocolError{Kind: DecryptFailed, Err: fmt.Errorf("session key not established")}
		}
		cph = c.session
	}

	plaintext, err := cph.Decrypt(ciphertext)
	if err != nil {
		return 0, 0, nil, &ProtocolError{Kind: DecryptFailed, Err: err}
	}

	if len(plaintext) < 5 {
		return 0, 0, nil, &ProtocolError{Kind: Truncated}
	}

	command := binary.LittleEndian.Uint16(plaintext[2:4])
	errorCode := plaintext[4]
	data := plaintext[5:]

	return command, errorCode, data, nil
}
