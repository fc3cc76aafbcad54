package models

type CategoryName string

const (
	CategoryCasual   CategoryName = "CASUAL"
	CategoryBirthday CategoryName = "BIRTHDAY"
	CategoryWedding  CategoryName = "WEDDING"
	CategoryFormal   CategoryName = "FORMAL"
)

func CategoryNames() []CategoryName {
	return []CategoryName{CategoryCasual, CategoryBirthday, CategoryWedding, CategoryFormal}
}

func (n CategoryName) Valid() bool {
	switch n {
	case CategoryCasual, CategoryBirthday, CategoryWedding, CategoryFormal:
		return true
	default:
		return false
	}
}

func (n CategoryName) Label() string {
	switch n {
	case CategoryCasual:
		return "Casual Party"
	case CategoryBirthday:
		return "Birthday Party"
	case CategoryWedding:
		return "Wedding Party"
	case CategoryFormal:
		return "Formal Party"
	default:
		return string(n)
	}
}

type Category struct {
	BaseModel
	Name        CategoryName `json:"name" gorm:"type:varchar(15);uniqueIndex;not null;default:'CASUAL'"`
	Description *string      `json:"description,omitempty" gorm:"type:text"`
	Events      []Event      `json:"-" gorm:"foreignKey:CategoryID"`
}
