package models

// PCSequence is a monotonic counter for one code scope. Rows are never deleted.
type PCSequence struct {
	Scope     string `gorm:"column:scope;type:varchar(64);primaryKey"`
	LastValue int64  `gorm:"column:last_value;not null"`
}

func (PCSequence) TableName() string { return "pc_sequences" }

// All lists the ledger models in dependency order, for AutoMigrate in tests and local sqlite mode.
func All() []any {
	return []any{&PCMember{}, &PCTransaction{}, &PCSettlement{}, &PCSequence{}}
}
