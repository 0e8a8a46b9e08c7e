package models

// PropertyKind is the wire type of an ordinary dynamic property value.
type PropertyKind string

const (
	KindString   PropertyKind = "string"
	KindInt      PropertyKind = "int"
	KindFloat    PropertyKind = "float"
	KindDateTime PropertyKind = "datetime"
)

// PropertyValue is one ordinary dynamic property value in its canonical
// string encoding (ints and floats as decimal text, datetimes as RFC 3339).
type PropertyValue struct {
	Kind  PropertyKind `json:"kind"`
	Value string       `json:"value"`
}

// BinaryDataValue is one binary property: stored bytes plus metadata.
// FileID is assigned by the storage engine from the content hash, so two
// versions carrying the same bytes share one blob.
type BinaryDataValue struct {
	ID          int64  `json:"id"`
	FileID      string `json:"file_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`

	// Buffer carries the payload on write and is populated on load.
	Buffer []byte `json:"-"`
}

// DynamicPropertyData is the full payload of one version, keyed by
// property type id throughout.
type DynamicPropertyData struct {
	// Dynamic holds ordinary scalar values.
	Dynamic map[int64]PropertyValue `json:"dynamic,omitempty"`

	// LongText holds large text values kept out of the ordinary set.
	LongText map[int64]string `json:"long_text,omitempty"`

	// Reference holds node references: property type id -> referred node ids.
	Reference map[int64][]int64 `json:"reference,omitempty"`

	// Binary holds binary values whose bytes are delegated to the blob store.
	Binary map[int64]*BinaryDataValue `json:"binary,omitempty"`
}

// IsEmpty reports whether the payload carries no values at all.
func (d *DynamicPropertyData) IsEmpty() bool {
	if d == nil {
		return true
	}
	return len(d.Dynamic) == 0 && len(d.LongText) == 0 && len(d.Reference) == 0 && len(d.Binary) == 0
}
