package media

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

var validate = validator.New()

// StageRequest announces an upload before the bytes arrive
type StageRequest struct {
	ID             string     `json:"_id" validate:"omitempty,max=255"`
	Origin         string     `json:"origin" validate:"omitempty,oneof=upload url"`
	Type           string     `json:"type" validate:"required_unless=Origin url,omitempty,max=128,contains=/"`
	Size           int64      `json:"size" validate:"gte=0"`
	URL            string     `json:"url" validate:"required_if=Origin url,omitempty,url"`
	Captured       *time.Time `json:"captured"`
	Classification string     `json:"classification" validate:"max=255"`
}

func (r *StageRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrInvalidInput, err)
	}
	if r.ID != "" {
		return ValidateID(r.ID)
	}
	return nil
}

// StageResult is returned by Stage
type StageResult struct {
	ID     string `json:"_id"`
	Status string `json:"status"`
}

// UploadFile is the payload of an upload
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadResult is returned by Upload
type UploadResult struct {
	ID     string `json:"_id"`
	Status string `json:"status"`
	URL    string `json:"url"`
	Type   string `json:"type"`
}

// NewID mints a time ordered media id
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ValidateID rejects ids that cannot be addressed: the last path segment must not contain
// a dot because the first dot starts the variant segment, and commas separate ids on removal.
func ValidateID(id string) error {
	if id == "" || strings.HasPrefix(id, "/") || strings.HasSuffix(id, "/") || strings.Contains(id, ",") {
		return fmt.Errorf("%w: invalid id %q", apperror.ErrInvalidInput, id)
	}
	for _, part := range strings.Split(id, "/") {
		if part == "" || part == ".." {
			return fmt.Errorf("%w: invalid id %q", apperror.ErrInvalidInput, id)
		}
	}
	last := id[strings.LastIndex(id, "/")+1:]
	if strings.ContainsAny(last, ".?#") {
		return fmt.Errorf("%w: id segment %q must not contain '.'", apperror.ErrInvalidInput, last)
	}
	return nil
}
