package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/chazu/bcverify/classfile"
	"github.com/chazu/bcverify/verifier"
)

// FormatVersion is written first into every serialization. Bump it when
// the layout below or the cached payload changes.
const FormatVersion byte = 0x01

// Sum is a SHA-256 digest.
type Sum [32]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// ---------------------------------------------------------------------------
// Deterministic binary serialization of classes and methods.
//
// Encoding conventions:
//   - First byte: FormatVersion, then a section marker
//   - Integers: big-endian fixed-width (int64=8B, uint16=2B)
//   - Floats: IEEE 754 big-endian bits
//   - Strings: uint32 big-endian length + bytes
//   - Lists: uint32 big-endian count + elements
// ---------------------------------------------------------------------------

const (
	markMethod    byte = 'M'
	markHierarchy byte = 'H'
	markKey       byte = 'K'
)

type serializer struct {
	buf []byte
}

func newSerializer(mark byte) *serializer {
	s := &serializer{buf: make([]byte, 0, 512)}
	s.writeByte(FormatVersion)
	s.writeByte(mark)
	return s
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt(v int) {
	s.writeInt64(int64(v))
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBytes(v []byte) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeStrings(v []string) {
	s.writeUint32(uint32(len(v)))
	for _, str := range v {
		s.writeString(str)
	}
}

func (s *serializer) sum() Sum {
	return sha256.Sum256(s.buf)
}

func (s *serializer) pool(p *classfile.ConstantPool) {
	entries := p.Entries()
	s.writeUint32(uint32(len(entries)))
	for _, c := range entries {
		s.writeByte(byte(c.Tag))
		switch c.Tag {
		case 0:
			// index 0 and the shadow slot after a long or double
		case classfile.TagUtf8:
			s.writeString(c.Text)
		case classfile.TagInteger:
			s.writeInt64(int64(c.Int))
		case classfile.TagFloat:
			s.writeUint32(math.Float32bits(c.Float))
		case classfile.TagLong:
			s.writeInt64(c.Long)
		case classfile.TagDouble:
			s.writeInt64(int64(math.Float64bits(c.Double)))
		default:
			s.writeInt(c.Ref1)
			s.writeInt(c.Ref2)
		}
	}
}

// header covers what every class contributes to assignability.
func (s *serializer) header(c *classfile.Class) {
	s.writeString(c.Name)
	s.writeString(c.Super)
	s.writeStrings(c.Interfaces)
	s.writeUint16(uint16(c.Access))
}

func (s *serializer) members(c *classfile.Class) {
	s.writeUint32(uint32(len(c.Fields)))
	for _, f := range c.Fields {
		s.writeString(f.Name)
		s.writeString(f.Descriptor)
		s.writeUint16(uint16(f.Access))
	}
	s.writeUint32(uint32(len(c.Methods)))
	for _, m := range c.Methods {
		s.writeString(m.Name)
		s.writeString(m.Descriptor)
		s.writeUint16(uint16(m.Access))
	}
}

// Fingerprint hashes everything verifying m can read from its own class:
// the class header, its constant pool, and the method's code attribute.
func Fingerprint(class *classfile.Class, m *classfile.Method) Sum {
	s := newSerializer(markMethod)
	s.header(class)
	s.pool(class.Pool)
	s.writeString(m.Name)
	s.writeString(m.Descriptor)
	s.writeUint16(uint16(m.Access))
	s.writeInt(m.MaxStack)
	s.writeInt(m.MaxLocals)
	s.writeBytes(m.Code)
	s.writeUint32(uint32(len(m.Handlers)))
	for _, h := range m.Handlers {
		s.writeInt(h.Start)
		s.writeInt(h.End)
		s.writeInt(h.Target)
		s.writeInt(h.CatchType)
	}
	return s.sum()
}

// HierarchyFingerprint hashes the structure of every class in repo: names,
// supertypes, access flags and member signatures. Code is left out, so
// editing one method body does not invalidate verdicts of other classes.
func HierarchyFingerprint(repo *classfile.Repository) Sum {
	s := newSerializer(markHierarchy)
	classes := repo.All()
	s.writeUint32(uint32(len(classes)))
	for _, c := range classes {
		s.header(c)
		s.members(c)
	}
	return s.sum()
}

// Key combines a method fingerprint, a hierarchy fingerprint and the
// options that can change a verdict or its diagnostic.
func Key(method, hierarchy Sum, opts verifier.Options) string {
	s := newSerializer(markKey)
	s.buf = append(s.buf, method[:]...)
	s.buf = append(s.buf, hierarchy[:]...)
	s.writeBool(opts.StrictSubroutineHandlers)
	s.writeInt(opts.TraceLimit)
	return s.sum().String()
}
