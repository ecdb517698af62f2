package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

var fatalTag = color.New(color.FgRed, color.Bold).SprintFunc()

func Fatal(v any) {
	fmt.Fprintf(os.Stderr, "recomp:\n\t%s: %v\n", fatalTag("fatal"), v)
	debug.PrintStack()
	os.Exit(1)
}

func MustNo(err error) {
	if err != nil {
		Fatal(err.Error())
	}
}

// Assert panics on a violated usage invariant. Library code never exits the
// process; the CLI turns an escaped panic into Fatal.
func Assert(condition bool, format string, args ...any) {
	if !condition {
		panic(errors.Errorf("assertion failed: "+format, args...))
	}
}

func Read[T any](data []byte) (val T) {
	reader := bytes.NewReader(data)
	err := binary.Read(reader, binary.LittleEndian, &val)
	if err != nil {
		panic(errors.Wrapf(err, "reading %T", val))
	}
	return val
}

// TryRead is Read for untrusted input.
func TryRead[T any](data []byte) (val T, err error) {
	reader := bytes.NewReader(data)
	err = binary.Read(reader, binary.LittleEndian, &val)
	return val, errors.Wrapf(err, "reading %T", val)
}

func Write[T any](data []byte, e T) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, binary.LittleEndian, e)
	if err != nil {
		panic(errors.Wrapf(err, "writing %T", e))
	}
	copy(data, buf.Bytes())
}

func Encode[T any](e T) []byte {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, binary.LittleEndian, e)
	if err != nil {
		panic(errors.Wrapf(err, "encoding %T", e))
	}
	return buf.Bytes()
}

func RemovePrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return strings.TrimPrefix(s, prefix), true
	}
	return s, false
}

func AlignTo(val, align uint64) uint64 {
	if align == 0 {
		return val
	}
	return (val + align - 1) &^ (align - 1)
}
