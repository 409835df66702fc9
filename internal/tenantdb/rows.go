package tenantdb

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// staticRows is an in-memory pgx.Rows used by mock mode, no-op executors and
// tests. Values are assigned to scan destinations by type.
type staticRows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	pos    int
	err    error
	closed bool
}

// StaticRows builds a pgx.Rows over fixed values. Every row must have one
// value per column.
func StaticRows(columns []string, data ...[]any) pgx.Rows {
	fields := make([]pgconn.FieldDescription, len(columns))
	for i, name := range columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return &staticRows{fields: fields, data: data, pos: -1}
}

func emptyRows() pgx.Rows {
	return StaticRows(nil)
}

func (r *staticRows) Close() {
	r.closed = true
}

func (r *staticRows) Err() error {
	return r.err
}

func (r *staticRows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag("SELECT " + strconv.Itoa(len(r.data)))
}

func (r *staticRows) FieldDescriptions() []pgconn.FieldDescription {
	return r.fields
}

func (r *staticRows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	r.pos++
	if r.pos >= len(r.data) {
		r.closed = true
		return false
	}
	return true
}

func (r *staticRows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return errors.New("scan called without a current row")
	}
	row := r.data[r.pos]
	if len(dest) != len(row) {
		r.err = fmt.Errorf("number of values (%d) does not match destinations (%d)", len(row), len(dest))
		return r.err
	}
	for i := range dest {
		if err := assignValue(dest[i], row[i]); err != nil {
			r.err = pgx.ScanArgError{ColumnIndex: i, Err: err}
			return r.err
		}
	}
	return nil
}

func (r *staticRows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil, errors.New("no current row")
	}
	return r.data[r.pos], nil
}

func (r *staticRows) RawValues() [][]byte {
	return nil
}

func (r *staticRows) Conn() *pgx.Conn {
	return nil
}

func assignValue(dest any, val any) error {
	if scanner, ok := dest.(sql.Scanner); ok {
		return scanner.Scan(val)
	}

	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return errors.New("destination must be a non-nil pointer")
	}
	elem := target.Elem()
	if val == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}

	if elem.Kind() == reflect.Pointer {
		inner := reflect.New(elem.Type().Elem())
		if err := assignValue(inner.Interface(), val); err != nil {
			return err
		}
		elem.Set(inner)
		return nil
	}

	src := reflect.ValueOf(val)
	if src.Type().AssignableTo(elem.Type()) {
		elem.Set(src)
		return nil
	}
	if isNumber(src.Kind()) && isNumber(elem.Kind()) {
		if err := checkNumber(src, elem.Type()); err != nil {
			return err
		}
		elem.Set(src.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", val, elem.Type())
}

// checkNumber rejects conversions that would change the value: fractions
// into integers, and integers outside the destination's range.
func checkNumber(src reflect.Value, dst reflect.Type) error {
	switch {
	case isFloat(dst.Kind()):
		return nil
	case isFloat(src.Kind()):
		f := src.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return fmt.Errorf("cannot assign fractional %v to %s", f, dst)
		}
		if isUnsigned(dst.Kind()) {
			if f < 0 || reflect.Zero(dst).OverflowUint(uint64(f)) || f >= math.MaxUint64 {
				return fmt.Errorf("%v overflows %s", f, dst)
			}
			return nil
		}
		if f < math.MinInt64 || f >= math.MaxInt64 || reflect.Zero(dst).OverflowInt(int64(f)) {
			return fmt.Errorf("%v overflows %s", f, dst)
		}
	case isUnsigned(src.Kind()):
		u := src.Uint()
		if isUnsigned(dst.Kind()) {
			if reflect.Zero(dst).OverflowUint(u) {
				return fmt.Errorf("%d overflows %s", u, dst)
			}
			return nil
		}
		if u > math.MaxInt64 || reflect.Zero(dst).OverflowInt(int64(u)) {
			return fmt.Errorf("%d overflows %s", u, dst)
		}
	default:
		n := src.Int()
		if isUnsigned(dst.Kind()) {
			if n < 0 || reflect.Zero(dst).OverflowUint(uint64(n)) {
				return fmt.Errorf("%d overflows %s", n, dst)
			}
			return nil
		}
		if reflect.Zero(dst).OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, dst)
		}
	}
	return nil
}

func isFloat(kind reflect.Kind) bool {
	return kind == reflect.Float32 || kind == reflect.Float64
}

func isUnsigned(kind reflect.Kind) bool {
	switch kind {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumber(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
