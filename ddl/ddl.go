package ddl

import (
	"errors"
	"fmt"
)

type (
	FieldType string

	Field struct {
		Name     string    `json:"name" validate:"required"`
		Type     FieldType `json:"type" validate:"required"`
		Nullable bool      `json:"nullable"`
	}

	QuantumUnit string

	// Quantum buckets a timestamp field into N*Unit windows. It is always
	// the last component of a partition key.
	Quantum struct {
		Field string      `json:"field"`
		N     int64       `json:"n"`
		Unit  QuantumUnit `json:"unit"`
	}

	// KeyComponent is either a direct field reference (Param) or a quantum.
	KeyComponent struct {
		Param   string   `json:"param,omitempty"`
		Quantum *Quantum `json:"quantum,omitempty"`
	}

	// Table is the immutable schema a table is activated with.
	Table struct {
		Name         string         `json:"name" validate:"required"`
		Fields       []Field        `json:"fields" validate:"required,min=1"`
		PartitionKey []KeyComponent `json:"partition_key" validate:"required,min=1"`
		LocalKey     []string       `json:"local_key" validate:"required,min=1"`
	}
)

const (
	TypeVarchar   FieldType = "varchar"
	TypeSint64    FieldType = "sint64"
	TypeDouble    FieldType = "double"
	TypeTimestamp FieldType = "timestamp"
	TypeBoolean   FieldType = "boolean"

	UnitSecond QuantumUnit = "s"
	UnitMinute QuantumUnit = "m"
	UnitHour   QuantumUnit = "h"
	UnitDay    QuantumUnit = "d"
)

var (
	ErrFieldNotFound = errors.New("field not found")

	validTypes = map[FieldType]bool{
		TypeVarchar:   true,
		TypeSint64:    true,
		TypeDouble:    true,
		TypeTimestamp: true,
		TypeBoolean:   true,
	}
	validUnits = map[QuantumUnit]bool{
		UnitSecond: true,
		UnitMinute: true,
		UnitHour:   true,
		UnitDay:    true,
	}
)

// Validate checks the schema invariants: known field types, exactly one
// quantum component in the last partition key slot, partition key params
// referencing declared fields, and a local key that covers every direct
// partition key field and ends with the quantum's base field.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("table %s has no fields", t.Name)
	}
	fieldTypes := make(map[string]FieldType, len(t.Fields))
	for _, f := range t.Fields {
		if !validTypes[f.Type] {
			return fmt.Errorf("field %s has unknown type %s", f.Name, f.Type)
		}
		if _, exists := fieldTypes[f.Name]; exists {
			return fmt.Errorf("duplicate field %s", f.Name)
		}
		fieldTypes[f.Name] = f.Type
	}

	if len(t.PartitionKey) == 0 {
		return fmt.Errorf("table %s has no partition key", t.Name)
	}
	quantumCount := 0
	for i, kc := range t.PartitionKey {
		switch {
		case kc.Quantum != nil:
			quantumCount++
			q := kc.Quantum
			if i != len(t.PartitionKey)-1 {
				return fmt.Errorf("quantum on %s must be the last partition key component", q.Field)
			}
			if q.N <= 0 {
				return fmt.Errorf("quantum size must be positive, got %d", q.N)
			}
			if !validUnits[q.Unit] {
				return fmt.Errorf("unknown quantum unit %s", q.Unit)
			}
			if ft, ok := fieldTypes[q.Field]; !ok {
				return fmt.Errorf("quantum references unknown field %s", q.Field)
			} else if ft != TypeTimestamp {
				return fmt.Errorf("quantum field %s must be a timestamp, got %s", q.Field, ft)
			}
		case kc.Param != "":
			if _, ok := fieldTypes[kc.Param]; !ok {
				return fmt.Errorf("partition key references unknown field %s", kc.Param)
			}
		default:
			return fmt.Errorf("empty partition key component at position %d", i)
		}
	}
	if quantumCount != 1 {
		return fmt.Errorf("partition key must have exactly one quantum, got %d", quantumCount)
	}

	q := t.PartitionKey[len(t.PartitionKey)-1].Quantum
	if len(t.LocalKey) == 0 {
		return fmt.Errorf("table %s has no local key", t.Name)
	}
	for _, name := range t.LocalKey {
		if _, ok := fieldTypes[name]; !ok {
			return fmt.Errorf("local key references unknown field %s", name)
		}
	}
	if t.LocalKey[len(t.LocalKey)-1] != q.Field {
		return fmt.Errorf("local key must end with quantum field %s", q.Field)
	}
	for _, kc := range t.PartitionKey {
		if kc.Param != "" && !containsString(t.LocalKey, kc.Param) {
			return fmt.Errorf("local key is missing partition key field %s", kc.Param)
		}
	}

	return nil
}

// QuantumSpec returns the partition key's quantum component. Only valid on a
// validated table.
func (t *Table) QuantumSpec() *Quantum {
	for _, kc := range t.PartitionKey {
		if kc.Quantum != nil {
			return kc.Quantum
		}
	}
	return nil
}

func (t *Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldType resolves a field's declared type.
func (t *Table) FieldType(name string) (FieldType, error) {
	f, ok := t.Field(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	return f.Type, nil
}

// FieldNames returns the declared fields in order.
func (t *Table) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

func containsString(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}
