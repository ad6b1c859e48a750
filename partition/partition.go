package partition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quantadb/quantadb/ddl"
)

type (
	// KeyCell is one typed component of a storage key: the compiled form of
	// a key field binding.
	KeyCell struct {
		Field string        `json:"field"`
		Type  ddl.FieldType `json:"type"`
		Value any           `json:"value"`
	}
)

var (
	ErrMissingKeyCell  = errors.New("missing key cell")
	ErrUnpackableValue = errors.New("value cannot be packed into a key")
)

// SpanMS returns the quantum window width in milliseconds.
func SpanMS(q *ddl.Quantum) int64 {
	var unitMS int64
	switch q.Unit {
	case ddl.UnitSecond:
		unitMS = 1_000
	case ddl.UnitMinute:
		unitMS = 60_000
	case ddl.UnitHour:
		unitMS = 3_600_000
	case ddl.UnitDay:
		unitMS = 86_400_000
	}
	return q.N * unitMS
}

// Bucket rounds a timestamp down to its quantum window start.
func Bucket(q *ddl.Quantum, tsMS int64) int64 {
	span := SpanMS(q)
	b := tsMS - (tsMS % span)
	if tsMS < 0 && tsMS%span != 0 {
		b -= span
	}
	return b
}

// BoundariesBetween returns the quantum window starts strictly between lo
// and hi, ascending.
func BoundariesBetween(q *ddl.Quantum, loMS, hiMS int64) []int64 {
	span := SpanMS(q)
	var bounds []int64
	for b := Bucket(q, loMS) + span; b < hiMS; b += span {
		if b > loMS {
			bounds = append(bounds, b)
		}
	}
	return bounds
}

// PartitionPath packs key cells into the engine-level partition key, in
// partition key order. The quantum component is packed as its bucketed
// value so every row of one window lands in the same partition.
func PartitionPath(pk []ddl.KeyComponent, cells []KeyCell) (string, error) {
	var parts []string
	for _, kc := range pk {
		if kc.Quantum != nil {
			cell, ok := findCell(cells, kc.Quantum.Field)
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrMissingKeyCell, kc.Quantum.Field)
			}
			ts, err := int64Value(cell.Value)
			if err != nil {
				return "", fmt.Errorf("error packing quantum cell %s: %w", cell.Field, err)
			}
			parts = append(parts, fmt.Sprintf("%s=%020d", cell.Field, Bucket(kc.Quantum, ts)))
			continue
		}
		cell, ok := findCell(cells, kc.Param)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingKeyCell, kc.Param)
		}
		packed, err := PackValue(cell.Type, cell.Value)
		if err != nil {
			return "", fmt.Errorf("error packing cell %s: %w", cell.Field, err)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", cell.Field, packed))
	}
	return strings.Join(parts, "/"), nil
}

// LocalKeyPath packs key cells into the intra-partition ordering key, in
// local key order. Integer and timestamp components are zero-padded to a
// fixed width so string order matches value order for non-negative values;
// doubles are packed without padding.
func LocalKeyPath(localKey []string, cells []KeyCell) (string, error) {
	var parts []string
	for _, name := range localKey {
		cell, ok := findCell(cells, name)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingKeyCell, name)
		}
		packed, err := PackValue(cell.Type, cell.Value)
		if err != nil {
			return "", fmt.Errorf("error packing cell %s: %w", cell.Field, err)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", cell.Field, packed))
	}
	return strings.Join(parts, "/"), nil
}

// PackValue renders a single typed value for use in a key.
func PackValue(t ddl.FieldType, v any) (string, error) {
	switch t {
	case ddl.TypeSint64, ddl.TypeTimestamp:
		iv, err := int64Value(v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%020d", iv), nil
	case ddl.TypeDouble:
		switch fv := v.(type) {
		case float64:
			return fmt.Sprintf("%v", fv), nil
		case int64:
			return fmt.Sprintf("%v", float64(fv)), nil
		}
	case ddl.TypeVarchar:
		if sv, ok := v.(string); ok {
			return sv, nil
		}
	case ddl.TypeBoolean:
		if bv, ok := v.(bool); ok {
			return fmt.Sprintf("%t", bv), nil
		}
	}
	return "", fmt.Errorf("%w: %T as %s", ErrUnpackableValue, v, t)
}

func findCell(cells []KeyCell, field string) (KeyCell, bool) {
	for _, c := range cells {
		if c.Field == field {
			return c, true
		}
	}
	return KeyCell{}, false
}

func int64Value(v any) (int64, error) {
	switch iv := v.(type) {
	case int64:
		return iv, nil
	case int:
		return int64(iv), nil
	case float64:
		return int64(iv), nil
	}
	return 0, fmt.Errorf("%w: %T as sint64", ErrUnpackableValue, v)
}
