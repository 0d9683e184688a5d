package otp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersionV1 = 1

// record is the stored form of a pending challenge: version byte,
// strategy byte, attempts left, expiry, owner id, sealed code.
type record struct {
	Strategy     Strategy
	AttemptsLeft uint16
	ExpiresAt    int64
	OwnerID      string
	SealedCode   []byte
}

func encodeRecord(r *record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	buf.WriteByte(byte(r.Strategy))

	if err := binary.Write(&buf, binary.BigEndian, r.AttemptsLeft); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	if len(r.OwnerID) > 65535 {
		return nil, errors.New("otp record owner id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.OwnerID))); err != nil {
		return nil, err
	}
	buf.WriteString(r.OwnerID)

	if len(r.SealedCode) > 65535 {
		return nil, errors.New("otp record sealed code too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.SealedCode))); err != nil {
		return nil, err
	}
	buf.Write(r.SealedCode)

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	strategy, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	r := &record{Strategy: Strategy(strategy)}

	if err := binary.Read(reader, binary.BigEndian, &r.AttemptsLeft); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}

	var ownerLen uint16
	if err := binary.Read(reader, binary.BigEndian, &ownerLen); err != nil {
		return nil, err
	}
	owner := make([]byte, ownerLen)
	if _, err := io.ReadFull(reader, owner); err != nil {
		return nil, err
	}
	r.OwnerID = string(owner)

	var sealedLen uint16
	if err := binary.Read(reader, binary.BigEndian, &sealedLen); err != nil {
		return nil, err
	}
	r.SealedCode = make([]byte, sealedLen)
	if _, err := io.ReadFull(reader, r.SealedCode); err != nil {
		return nil, err
	}

	return r, nil
}
