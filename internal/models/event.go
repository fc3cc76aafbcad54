package models

import (
	"time"

	"github.com/google/uuid"
)

// Event keeps date and time-of-day as independent scalar columns, the
// same shape the rest of the system filters and sorts on.
type Event struct {
	BaseModel
	Name        string     `json:"name" gorm:"type:varchar(100);not null"`
	Description *string    `json:"description,omitempty" gorm:"type:text"`
	Date        time.Time  `json:"date" gorm:"type:date;not null;index"`
	Time        string     `json:"time" gorm:"type:varchar(8);not null"`
	Location    string     `json:"location" gorm:"type:varchar(150);not null"`
	CategoryID  uuid.UUID  `json:"categoryID" gorm:"type:uuid;not null;index"`
	CreatedByID *uuid.UUID `json:"createdByID,omitempty" gorm:"type:uuid;index"`
	ImagePath   *string    `json:"-" gorm:"type:text"`

	Category  Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	CreatedBy *User    `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID"`
	RSVPs     []User   `json:"-" gorm:"many2many:rsvps;"`

	RSVPCount int64 `json:"rsvpCount" gorm:"-"`
	HasImage  bool  `json:"hasImage" gorm:"-"`
}
