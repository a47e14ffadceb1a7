package report

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatCBOR = "cbor"
)

// cborEncMode uses canonical mode so equal reports encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Report to CBOR bytes.
func Marshal(r *Report) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// Unmarshal deserializes a Report from CBOR bytes.
func Unmarshal(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: unmarshal report: %w", err)
	}
	return &r, nil
}

// MarshalMethod serializes a single MethodReport to CBOR bytes.
func MarshalMethod(m *MethodReport) ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalMethod deserializes a MethodReport from CBOR bytes.
func UnmarshalMethod(data []byte) (*MethodReport, error) {
	var m MethodReport
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("report: unmarshal method: %w", err)
	}
	return &m, nil
}

// MarshalYAML serializes a Report as a YAML document.
func MarshalYAML(r *Report) ([]byte, error) {
	return yaml.Marshal(r)
}

// Write encodes r to w in the given format. Color applies to text only.
func Write(w io.Writer, r *Report, format string, color bool) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatText, "":
		return WriteText(w, r, color)
	case FormatYAML:
		data, err = MarshalYAML(r)
	case FormatCBOR:
		data, err = Marshal(r)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
