package models

import (
	"time"
)

type Relation struct {
	ID            string    `json:"id" gorm:"primaryKey;type:text"`
	RelationType  string    `json:"relationType" gorm:"type:text;not null;index"`
	ArxivID       string    `json:"arxivId" gorm:"type:text;not null;index:idx_relations_eprint,priority:1"`
	ArxivVersion  int       `json:"arxivVersion" gorm:"not null;index:idx_relations_eprint,priority:2"`
	ResourceType  string    `json:"resourceType" gorm:"type:text;not null"`
	ResourceID    string    `json:"resourceId" gorm:"type:text;not null"`
	Description   string    `json:"description" gorm:"type:text;not null;default:''"`
	Creator       *string   `json:"creator" gorm:"type:text"`
	PredecessorID *string   `json:"predecessorId" gorm:"type:text;uniqueIndex:idx_relations_predecessor"`
	Predecessor   *Relation `json:"-" gorm:"foreignKey:PredecessorID;references:ID;constraint:OnDelete:RESTRICT;"`
	CDate         time.Time `json:"cdate" gorm:"not null;index"`
}

type Activation struct {
	RelationID string   `json:"relationId" gorm:"primaryKey;type:text"`
	Relation   Relation `json:"-" gorm:"foreignKey:RelationID;references:ID;constraint:OnDelete:CASCADE;"`
	Active     bool     `json:"active" gorm:"not null;default:true;index"`
}
