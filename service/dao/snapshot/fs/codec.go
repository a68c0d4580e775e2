package fs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/viant/kcore/errs"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec names a snapshot encoding
type Codec string

const (
	CodecJSON    Codec = "json"
	CodecMsgpack Codec = "msgpack"
)

// ParseCodec returns the codec for name, JSON when name is empty
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecMsgpack:
		return CodecMsgpack, nil
	}
	return "", fmt.Errorf("snapshot codec %q: %w", name, errs.ErrInvalidArgument)
}

// Ext returns the file extension
func (c Codec) Ext() string {
	if c == CodecMsgpack {
		return ".msgpack"
	}
	return ".json"
}

// Marshal encodes v; msgpack reuses the json struct tags
func (c Codec) Marshal(v interface{}) ([]byte, error) {
	if c != CodecMsgpack {
		return json.Marshal(v)
	}
	buf := new(bytes.Buffer)
	enc := msgpack.NewEncoder(buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data into v
func (c Codec) Unmarshal(data []byte, v interface{}) error {
	if c != CodecMsgpack {
		return json.Unmarshal(data, v)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
