package persistance

import (
	"github.com/ojparkinson/gpx-ingest/internal/track"
)

// Value is one cell of a Row. Each concrete type carries a present value;
// Null marks a column the point did not record.
type Value interface {
	Type() DataType
}

type (
	StringValue          string
	Uint32Value          uint32
	Uint64Value          uint64
	Float64Value         float64
	TimestampSecondValue int64
)

// Null is an unset cell of the given column type.
type Null struct {
	DataType DataType
}

func (StringValue) Type() DataType          { return String }
func (Uint32Value) Type() DataType          { return Uint32 }
func (Uint64Value) Type() DataType          { return Uint64 }
func (Float64Value) Type() DataType         { return Float64 }
func (TimestampSecondValue) Type() DataType { return TimestampSecond }
func (n Null) Type() DataType               { return n.DataType }

// IsNull reports whether v is unset.
func IsNull(v Value) bool {
	_, ok := v.(Null)
	return ok
}

// Row holds one value per GPXSchema column, in schema order.
type Row [ColumnCount]Value

// ToRow maps a point and its track identity onto a Row.
func ToRow(trackName string, trackIdx, segmentIdx uint32, p track.Point) (Row, error) {
	if p.Time == nil {
		return Row{}, track.ErrTimestampNotPresent
	}

	return Row{
		StringValue(trackName),
		Uint32Value(trackIdx),
		Uint32Value(segmentIdx),
		TimestampSecondValue(p.Time.Unix()),
		Float64Value(p.Latitude),
		Float64Value(p.Longitude),
		optFloat64(p.Elevation),
		optFloat64(p.GeoidHeight),
		optFloat64(p.HDOP),
		optFloat64(p.VDOP),
		optFloat64(p.PDOP),
		optString(p.Comment),
		optString(p.Description),
		optString(p.Source),
		optString(p.Symbol),
		optUint64(p.Satellites),
	}, nil
}

func optFloat64(v *float64) Value {
	if v == nil {
		return Null{DataType: Float64}
	}
	return Float64Value(*v)
}

func optString(v *string) Value {
	if v == nil {
		return Null{DataType: String}
	}
	return StringValue(*v)
}

func optUint64(v *uint64) Value {
	if v == nil {
		return Null{DataType: Uint64}
	}
	return Uint64Value(*v)
}
