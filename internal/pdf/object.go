package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Object is a PDF object the writer can encode: nil, bool, int, int64,
// float64, Name, String, Array, Dict, Ref or *Stream.
type Object any

// Name is a PDF name without its leading slash.
type Name string

// String is a PDF string (literal or hex).
type String []byte

// Array is a PDF array.
type Array []Object

// Dict is a PDF dictionary.
type Dict map[Name]Object

// Ref is an indirect reference.
type Ref struct {
	Num int
	Gen int
}

// Stream is a stream object. Dict /Length is set by the writer.
type Stream struct {
	Dict Dict
	Data []byte
}

func writeObject(buf *bytes.Buffer, o Object) error {
	switch v := o.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case int:
		buf.WriteString(strconv.Itoa(v))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	case Name:
		writeName(buf, v)
	case String:
		writeString(buf, v)
	case Ref:
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case Array:
		buf.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := writeObject(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Dict:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		buf.WriteString("<<")
		for _, k := range keys {
			buf.WriteByte(' ')
			writeName(buf, Name(k))
			buf.WriteByte(' ')
			if err := writeObject(buf, v[Name(k)]); err != nil {
				return err
			}
		}
		buf.WriteString(" >>")
	default:
		return fmt.Errorf("pdf: cannot encode %T", o)
	}
	return nil
}

func writeName(buf *bytes.Buffer, n Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < '!' || c > '~' || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

// writeString writes a literal string. Bytes outside printable ASCII are
// written as octal escapes so the file stays 7-bit outside streams.
func writeString(buf *bytes.Buffer, s []byte) {
	buf.WriteByte('(')
	for _, c := range s {
		switch {
		case c == '(' || c == ')' || c == '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case c < ' ' || c > '~':
			fmt.Fprintf(buf, "\\%03o", c)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
