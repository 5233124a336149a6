package cache

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ugorji/go/codec"
)

var msgpackHandle = &codec.MsgpackHandle{}

func init() {
	msgpackHandle.MapType = reflect.TypeOf(map[string]interface{}(nil))
	// map keys are sorted so that the same data always encodes to the same bytes
	msgpackHandle.Canonical = true
}

// MsgPackEncodeBytes encode data to bytes use msgpack
func MsgPackEncodeBytes(data interface{}) (bytes []byte, err error) {
	enc := codec.NewEncoderBytes(&bytes, msgpackHandle)
	err = enc.Encode(data)
	return
}

// MsgPackDecodeBytes decode bytes to dest use msgpack
func MsgPackDecodeBytes(bytes []byte, dest interface{}) (err error) {
	if len(bytes) == 0 {
		return errors.New("nil bytes to decode")
	}
	dec := codec.NewDecoderBytes(bytes, msgpackHandle)
	err = dec.Decode(dest)
	return
}

// MsgPackDecodeBytesStrict decode bytes to dest, bytes must contain exactly one value
func MsgPackDecodeBytesStrict(bytes []byte, dest interface{}) (err error) {
	if len(bytes) == 0 {
		return errors.New("nil bytes to decode")
	}
	dec := codec.NewDecoderBytes(bytes, msgpackHandle)
	if err = dec.Decode(dest); err != nil {
		return
	}
	if n := dec.NumBytesRead(); n != len(bytes) {
		return fmt.Errorf("%d trailing bytes after msgpack value", len(bytes)-n)
	}
	return nil
}
