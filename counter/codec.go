package counter

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/d0ngw/kcounter/cache"
	jsoniter "github.com/json-iterator/go"
)

// Codec encode and decode the entry set of a FileStore
type Codec interface {
	// Name of the format, such as "text"
	Name() string
	// CheckKey return ErrInvalidKey if key can't be represented by the codec
	CheckKey(key string) error
	// Encode write all the fields to w, the output is deterministic
	Encode(w io.Writer, fields Fields) error
	// Decode read the fields from r, malformed data return ErrCorrupt
	Decode(r io.Reader) (Fields, error)
}

// Supported formats
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// CodecByName return the codec of format, empty format is text
func CodecByName(format string) (Codec, error) {
	switch format {
	case "", FormatText:
		return TextCodec{}, nil
	case FormatJSON:
		return JSONCodec{}, nil
	case FormatMsgpack:
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown counter format %q", format)
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TextCodec store one "key<TAB>count" line per entry, sorted by key
type TextCodec struct{}

// Name implements Codec.Name
func (TextCodec) Name() string {
	return FormatText
}

// CheckKey implements Codec.CheckKey
func (TextCodec) CheckKey(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if strings.ContainsAny(key, "\t\r\n") {
		return fmt.Errorf("%w: %q contains tab or line break", ErrInvalidKey, key)
	}
	return nil
}

// Encode implements Codec.Encode
func (TextCodec) Encode(w io.Writer, fields Fields) error {
	bw := bufio.NewWriter(w)
	for _, k := range sortedKeys(fields) {
		bw.WriteString(k)
		bw.WriteByte('\t')
		bw.WriteString(strconv.FormatUint(fields[k], 10))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Decode implements Codec.Decode. Every line must be terminated, a missing final
// line break means a torn write.
func (TextCodec) Decode(r io.Reader) (Fields, error) {
	br := bufio.NewReaderSize(r, 4*1024)
	fields := Fields{}
	for lineNum := 1; ; lineNum++ {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			if line != "" {
				return nil, corruptError(FormatText, "line %d: unterminated line %q", lineNum, line)
			}
			return fields, nil
		}
		if err != nil {
			return nil, err
		}
		line = strings.TrimSuffix(line, "\n")
		tab := strings.IndexByte(line, '\t')
		if tab <= 0 {
			return nil, corruptError(FormatText, "line %d: want key<TAB>count, got %q", lineNum, line)
		}
		key, countStr := line[:tab], line[tab+1:]
		if strings.ContainsAny(key, "\r") {
			return nil, corruptError(FormatText, "line %d: bad key %q", lineNum, key)
		}
		count, err := strconv.ParseUint(countStr, 10, 64)
		if err != nil {
			return nil, corruptError(FormatText, "line %d: bad count %q", lineNum, countStr)
		}
		if _, ok := fields[key]; ok {
			return nil, corruptError(FormatText, "line %d: duplicate key %q", lineNum, key)
		}
		fields[key] = count
	}
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONCodec store the entries as one JSON object with sorted keys
type JSONCodec struct{}

// Name implements Codec.Name
func (JSONCodec) Name() string {
	return FormatJSON
}

// CheckKey implements Codec.CheckKey, keys must be valid UTF-8
func (JSONCodec) CheckKey(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidKey, key)
	}
	return nil
}

// Encode implements Codec.Encode
func (JSONCodec) Encode(w io.Writer, fields Fields) error {
	if fields == nil {
		fields = Fields{}
	}
	return jsonAPI.NewEncoder(w).Encode(fields)
}

// Decode implements Codec.Decode
func (JSONCodec) Decode(r io.Reader) (Fields, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, corruptError(FormatJSON, "empty data")
	}
	iter := jsoniter.ParseBytes(jsonAPI, data)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, corruptError(FormatJSON, "want an object")
	}
	fields := Fields{}
	var decodeErr error
	ok := iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		if _, ok := fields[key]; ok {
			decodeErr = corruptError(FormatJSON, "duplicate key %q", key)
			return false
		}
		if it.WhatIsNext() != jsoniter.NumberValue {
			decodeErr = corruptError(FormatJSON, "count of %q is not a number", key)
			return false
		}
		number := it.ReadNumber()
		count, err := strconv.ParseUint(string(number), 10, 64)
		if err != nil {
			decodeErr = corruptError(FormatJSON, "bad count %s of %q", number, key)
			return false
		}
		fields[key] = count
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	if !ok || (iter.Error != nil && iter.Error != io.EOF) {
		return nil, corruptError(FormatJSON, "%v", iter.Error)
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue {
		return nil, corruptError(FormatJSON, "trailing data after object")
	}
	return fields, nil
}

// MsgpackCodec store the entries as one msgpack map with sorted keys
type MsgpackCodec struct{}

// Name implements Codec.Name
func (MsgpackCodec) Name() string {
	return FormatMsgpack
}

// CheckKey implements Codec.CheckKey
func (MsgpackCodec) CheckKey(key string) error {
	return checkKey(key)
}

// Encode implements Codec.Encode
func (MsgpackCodec) Encode(w io.Writer, fields Fields) error {
	if fields == nil {
		fields = Fields{}
	}
	data, err := cache.MsgPackEncodeBytes(map[string]uint64(fields))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode implements Codec.Decode
func (MsgpackCodec) Decode(r io.Reader) (Fields, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var decoded map[string]uint64
	if err := cache.MsgPackDecodeBytesStrict(data, &decoded); err != nil {
		return nil, corruptError(FormatMsgpack, "%v", err)
	}
	if decoded == nil {
		return nil, corruptError(FormatMsgpack, "want a map")
	}
	if n, ok := msgpackMapLen(data); ok && n != len(decoded) {
		return nil, corruptError(FormatMsgpack, "duplicate keys, %d entries decoded to %d keys", n, len(decoded))
	}
	return Fields(decoded), nil
}

// msgpackMapLen read the entry count from the header of a fixmap, map16 or map32
func msgpackMapLen(data []byte) (int, bool) {
	switch {
	case len(data) >= 1 && data[0]&0xf0 == 0x80:
		return int(data[0] & 0x0f), true
	case len(data) >= 3 && data[0] == 0xde:
		return int(binary.BigEndian.Uint16(data[1:3])), true
	case len(data) >= 5 && data[0] == 0xdf:
		return int(binary.BigEndian.Uint32(data[1:5])), true
	}
	return 0, false
}
