package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	entryFormatVersionCurrent = 1
)

func Encode(e *Entry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(entryFormatVersionCurrent)

	if err := binary.Write(&buf, binary.BigEndian, e.UserID); err != nil {
		return nil, err
	}

	if len(e.AccessTokenHash) > 255 {
		return nil, errors.New("access token hash too long")
	}
	buf.WriteByte(byte(len(e.AccessTokenHash)))
	buf.WriteString(e.AccessTokenHash)

	if len(e.SourceHash) > 255 {
		return nil, errors.New("source hash too long")
	}
	buf.WriteByte(byte(len(e.SourceHash)))
	buf.WriteString(e.SourceHash)

	if err := binary.Write(&buf, binary.BigEndian, e.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.AccessExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.RefreshExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Entry, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != entryFormatVersionCurrent {
		return nil, errors.New("invalid ledger entry version")
	}

	e := &Entry{}

	if err := binary.Read(reader, binary.BigEndian, &e.UserID); err != nil {
		return nil, err
	}

	accessLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	accessHash := make([]byte, accessLen)
	if _, err := io.ReadFull(reader, accessHash); err != nil {
		return nil, err
	}
	e.AccessTokenHash = string(accessHash)

	sourceLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	sourceHash := make([]byte, sourceLen)
	if _, err := io.ReadFull(reader, sourceHash); err != nil {
		return nil, err
	}
	e.SourceHash = string(sourceHash)

	if err := binary.Read(reader, binary.BigEndian, &e.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &e.AccessExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &e.RefreshExpiresAt); err != nil {
		return nil, err
	}

	return e, nil
}
