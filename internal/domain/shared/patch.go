package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultDecimalPrecision is the rounding precision used when comparing
// decimal fields unless the caller specifies one.
const DefaultDecimalPrecision int32 = 4

// Patch accumulates proposed field values and keeps only the ones that
// actually differ from the current value. It is the idempotence primitive
// behind every import: applying the same remote snapshot twice produces an
// empty patch on the second pass, and an empty patch issues zero writes.
//
// Each typed setter encodes the appropriate equality for its field kind:
// decimals are compared after rounding to a configurable precision,
// references by identity, timestamps with time.Equal, everything else by
// raw equality.
type Patch struct {
	columns map[string]any
}

// NewPatch creates an empty patch
func NewPatch() *Patch {
	return &Patch{columns: make(map[string]any)}
}

// SetString records proposed if it differs from current
func (p *Patch) SetString(column, current, proposed string) *Patch {
	if current != proposed {
		p.columns[column] = proposed
	}
	return p
}

// SetInt records proposed if it differs from current
func (p *Patch) SetInt(column string, current, proposed int) *Patch {
	if current != proposed {
		p.columns[column] = proposed
	}
	return p
}

// SetBool records proposed if it differs from current
func (p *Patch) SetBool(column string, current, proposed bool) *Patch {
	if current != proposed {
		p.columns[column] = proposed
	}
	return p
}

// SetDecimal records proposed if it differs from current after rounding
// both sides to the given precision. Pass a negative precision to use
// DefaultDecimalPrecision.
func (p *Patch) SetDecimal(column string, current, proposed decimal.Decimal, precision int32) *Patch {
	if precision < 0 {
		precision = DefaultDecimalPrecision
	}
	if !current.Round(precision).Equal(proposed.Round(precision)) {
		p.columns[column] = proposed
	}
	return p
}

// SetTime records proposed if it differs from current (time.Equal semantics)
func (p *Patch) SetTime(column string, current, proposed time.Time) *Patch {
	if !current.Equal(proposed) {
		p.columns[column] = proposed
	}
	return p
}

// SetTimePtr records proposed if it differs from current, treating nil as
// distinct from any concrete timestamp
func (p *Patch) SetTimePtr(column string, current, proposed *time.Time) *Patch {
	switch {
	case current == nil && proposed == nil:
	case current == nil || proposed == nil:
		p.columns[column] = proposed
	case !current.Equal(*proposed):
		p.columns[column] = proposed
	}
	return p
}

// SetRef records proposed if the referenced identity differs. Relation
// fields are compared by id only, never by the related record's contents.
func (p *Patch) SetRef(column string, current, proposed *uuid.UUID) *Patch {
	switch {
	case current == nil && proposed == nil:
	case current == nil || proposed == nil:
		p.columns[column] = proposed
	case *current != *proposed:
		p.columns[column] = proposed
	}
	return p
}

// Changed reports whether any field differs
func (p *Patch) Changed() bool {
	return len(p.columns) > 0
}

// Columns returns the changed columns, suitable for a single UPDATE
func (p *Patch) Columns() map[string]any {
	return p.columns
}
