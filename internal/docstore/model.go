package docstore

// Document is the persisted row behind one document path.
type Document struct {
	Collection       string `gorm:"column:collection;primaryKey;size:190;not null"`
	DocumentID       string `gorm:"column:document_id;primaryKey;size:190;not null"`
	DataJSON         string `gorm:"column:data_json;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}
