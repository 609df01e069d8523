package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersion1 = 1

// ErrCorruptRecord is an exported constant or variable used by the authentication engine.
var ErrCorruptRecord = errors.New("corrupt session record")

// Encode serializes a session into the compact binary form stored in Redis.
// SessionID is the Redis key and is not part of the payload.
func Encode(sess *Session) ([]byte, error) {
	if sess == nil {
		return nil, ErrCorruptRecord
	}
	if len(sess.UserID) > 255 || len(sess.Roles) > 255 {
		return nil, ErrCorruptRecord
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)

	buf.WriteByte(byte(len(sess.UserID)))
	buf.WriteString(sess.UserID)

	buf.WriteByte(byte(len(sess.Roles)))
	for _, role := range sess.Roles {
		if len(role) > 255 {
			return nil, ErrCorruptRecord
		}
		buf.WriteByte(byte(len(role)))
		buf.WriteString(role)
	}

	buf.Write(sess.RefreshHash[:])
	buf.Write(sess.IPHash[:])
	buf.Write(sess.UserAgentHash[:])

	if err := binary.Write(&buf, binary.BigEndian, sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, sess.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode deserializes a session payload produced by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordVersion1 {
		return nil, ErrCorruptRecord
	}

	sess := &Session{}

	userID, err := readSmallString(reader)
	if err != nil {
		return nil, ErrCorruptRecord
	}
	sess.UserID = userID

	roleCount, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if roleCount > 0 {
		sess.Roles = make([]string, 0, roleCount)
		for i := 0; i < int(roleCount); i++ {
			role, err := readSmallString(reader)
			if err != nil {
				return nil, ErrCorruptRecord
			}
			sess.Roles = append(sess.Roles, role)
		}
	}

	if _, err := io.ReadFull(reader, sess.RefreshHash[:]); err != nil {
		return nil, ErrCorruptRecord
	}
	if _, err := io.ReadFull(reader, sess.IPHash[:]); err != nil {
		return nil, ErrCorruptRecord
	}
	if _, err := io.ReadFull(reader, sess.UserAgentHash[:]); err != nil {
		return nil, ErrCorruptRecord
	}

	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.ExpiresAt); err != nil {
		return nil, ErrCorruptRecord
	}

	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}

	return sess, nil
}

func readSmallString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
