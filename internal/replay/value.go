package replay

import (
	"strconv"
)

// Value is one of the scalar kinds the cache can store: Text, Bytes, Int
// or Float. The set is closed.
type Value interface {
	// Encode returns the bytes written to the store.
	Encode() []byte
	// Repr returns the representation recorded in call history.
	Repr() string
	isValue()
}

type Text string

type Bytes []byte

type Int int64

type Float float64

func (v Text) Encode() []byte  { return []byte(v) }
func (v Bytes) Encode() []byte { return []byte(v) }
func (v Int) Encode() []byte   { return strconv.AppendInt(nil, int64(v), 10) }
func (v Float) Encode() []byte { return strconv.AppendFloat(nil, float64(v), 'g', -1, 64) }

func (v Text) Repr() string  { return string(v) }
func (v Bytes) Repr() string { return string(v) }
func (v Int) Repr() string   { return strconv.FormatInt(int64(v), 10) }
func (v Float) Repr() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

func (Text) isValue()  {}
func (Bytes) isValue() {}
func (Int) isValue()   {}
func (Float) isValue() {}
