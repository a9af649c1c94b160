package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Media status values
const (
	STATUS_STAGED = "staged"
	STATUS_LIVE   = "live"
)

// Media origin values
const (
	ORIGIN_UPLOAD = "upload"
	ORIGIN_URL    = "url"
)

// Field names of a media document. They double as keys in Upsert field maps.
const (
	FieldID             = "_id"
	FieldStatus         = "status"
	FieldType           = "type"
	FieldSize           = "size"
	FieldCaptured       = "captured"
	FieldSystem         = "system"
	FieldOrigin         = "origin"
	FieldURL            = "url"
	FieldFile           = "file"
	FieldAccount        = "account"
	FieldClassification = "classification"
	FieldProps          = "props"
	FieldVariants       = "variants"
	FieldCreated        = "_created"
	FieldCreatedBy      = "_createdBy"
	FieldModified       = "_modified"
)

// MediaItem is the metadata record of one logical media asset.
type MediaItem struct {
	ID             string     `bson:"_id" json:"_id" gorm:"column:id;primaryKey;size:255"`
	Status         string     `bson:"status" json:"status" gorm:"size:16;index"`
	Type           string     `bson:"type,omitempty" json:"type,omitempty" gorm:"size:128"`
	Size           int64      `bson:"size,omitempty" json:"size,omitempty"`
	Captured       *time.Time `bson:"captured,omitempty" json:"captured,omitempty"`
	System         string     `bson:"system,omitempty" json:"system,omitempty" gorm:"size:32"`
	Origin         string     `bson:"origin,omitempty" json:"origin,omitempty" gorm:"size:16"`
	URL            string     `bson:"url,omitempty" json:"url,omitempty" gorm:"size:2048"`
	File           string     `bson:"file,omitempty" json:"file,omitempty" gorm:"size:512"`
	Account        string     `bson:"account,omitempty" json:"account,omitempty" gorm:"size:255;index"`
	Classification string     `bson:"classification,omitempty" json:"classification,omitempty" gorm:"size:255"`
	Props          Props      `bson:"props,omitempty" json:"props,omitempty" gorm:"type:json"`
	Variants       StringList `bson:"variants,omitempty" json:"variants,omitempty" gorm:"type:json"`
	Created        time.Time  `bson:"_created" json:"_created" gorm:"column:created"`
	CreatedBy      string     `bson:"_createdBy,omitempty" json:"_createdBy,omitempty" gorm:"column:created_by;size:255"`
	Modified       time.Time  `bson:"_modified" json:"_modified" gorm:"column:modified"`
}

// TableName overrides the gorm table name
func (MediaItem) TableName() string {
	return "media_items"
}

// IsLive reports whether the binary has been confirmed by the storage backend.
func (m *MediaItem) IsLive() bool {
	return m.Status == STATUS_LIVE
}

// HasVariant reports whether spec is in the variant registry.
func (m *MediaItem) HasVariant(spec string) bool {
	for _, v := range m.Variants {
		if v == spec {
			return true
		}
	}
	return false
}

// Apply copies the known fields of an Upsert field map onto the item.
// Unknown keys are ignored.
func (m *MediaItem) Apply(fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case FieldStatus:
			m.Status, _ = value.(string)
		case FieldType:
			m.Type, _ = value.(string)
		case FieldSize:
			m.Size = toInt64(value)
		case FieldCaptured:
			m.Captured = toTimePtr(value)
		case FieldSystem:
			m.System, _ = value.(string)
		case FieldOrigin:
			m.Origin, _ = value.(string)
		case FieldURL:
			m.URL, _ = value.(string)
		case FieldFile:
			m.File, _ = value.(string)
		case FieldAccount:
			m.Account, _ = value.(string)
		case FieldClassification:
			m.Classification, _ = value.(string)
		case FieldProps:
			switch p := value.(type) {
			case Props:
				m.Props = p
			case map[string]interface{}:
				m.Props = Props(p)
			case nil:
				m.Props = nil
			}
		case FieldVariants:
			switch v := value.(type) {
			case StringList:
				m.Variants = append(StringList{}, v...)
			case []string:
				m.Variants = append(StringList{}, v...)
			case nil:
				m.Variants = StringList{}
			}
		case FieldCreated:
			if ts := toTimePtr(value); ts != nil {
				m.Created = *ts
			}
		case FieldCreatedBy:
			m.CreatedBy, _ = value.(string)
		case FieldModified:
			if ts := toTimePtr(value); ts != nil {
				m.Modified = *ts
			}
		}
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func toTimePtr(v interface{}) *time.Time {
	switch ts := v.(type) {
	case time.Time:
		if ts.IsZero() {
			return nil
		}
		return &ts
	case *time.Time:
		return ts
	}
	return nil
}

// Props holds free-form client properties of a media item
type Props map[string]interface{}

// Value implements the driver.Valuer interface
func (p Props) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (p *Props) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	return json.Unmarshal(bytes, p)
}

// StringList is a list of strings stored as a JSON array column
type StringList []string

// Value implements the driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = StringList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	return json.Unmarshal(bytes, s)
}
