package domain

import (
	"github.com/arxiv/relations"
)

func (e EPrint) ToWire() relations.EPrint {
	return relations.EPrint{ArxivID: e.ArxivID, Version: e.Version}
}

func (r Relation) ToWire() relations.Relation {
	return relations.Relation{
		Identifier:   r.ID,
		RelationType: string(r.Type),
		EPrint:       r.EPrint.ToWire(),
		Resource: relations.Resource{
			ResourceType: r.Resource.ResourceType,
			Identifier:   r.Resource.Identifier,
		},
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		Creator:     r.Creator,
		Predecessor: r.Predecessor,
	}
}

// RelationFromWire is the inverse of Relation.ToWire.
func RelationFromWire(w relations.Relation) Relation {
	return Relation{
		ID:   w.Identifier,
		Type: RelationType(w.RelationType),
		EPrint: EPrint{
			ArxivID: w.EPrint.ArxivID,
			Version: w.EPrint.Version,
		},
		Resource: Resource{
			ResourceType: w.Resource.ResourceType,
			Identifier:   w.Resource.Identifier,
		},
		Description: w.Description,
		CreatedAt:   w.CreatedAt.UTC(),
		Creator:     w.Creator,
		Predecessor: w.Predecessor,
	}
}

func (e LineageEntry) ToWire() relations.LineageEntry {
	return relations.LineageEntry{Relation: e.Relation.ToWire(), State: string(e.State)}
}

func (ev RelationEvent) ToWire() relations.Event {
	return relations.Event{Kind: string(ev.Kind), Relation: ev.Relation.ToWire(), Retired: ev.Retired}
}
