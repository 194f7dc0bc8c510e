package sink

import "github.com/rushteam/simrec/core"

// Document 是 JSON / KV 产物的结构，字段顺序固定。
type Document struct {
	UserID  int64         `json:"user_id"`
	Columns []string      `json:"columns"`
	Items   []DocumentRow `json:"items"`
}

// DocumentRow 是 Document 中的一个物品。
type DocumentRow struct {
	ItemID       int64             `json:"item_id"`
	Score        float64           `json:"score"`
	Title        string            `json:"title"`
	Genres       []string          `json:"genres"`
	Fields       map[string]string `json:"fields,omitempty"`
	SourceRating *float64          `json:"source_rating,omitempty"`
	SourceUserID *int64            `json:"source_user_id,omitempty"`
}

// NewDocument 只保留 extra 中列出的元数据字段。
func NewDocument(rec *core.Recommendation, extra []string) Document {
	doc := Document{
		UserID:  rec.UserID,
		Columns: Columns(extra),
		Items:   make([]DocumentRow, 0, len(rec.Items)),
	}
	for _, it := range rec.Items {
		row := DocumentRow{ItemID: it.ID, Score: it.Score, Genres: []string{}}
		if it.Meta != nil {
			row.Title = it.Meta.Title
			if len(it.Meta.Genres) > 0 {
				row.Genres = it.Meta.Genres
			}
			for _, f := range extra {
				v, ok := it.Meta.Fields[f]
				if !ok {
					continue
				}
				if row.Fields == nil {
					row.Fields = make(map[string]string, len(extra))
				}
				row.Fields[f] = v
			}
		}
		if it.Endorsement.UserID != 0 {
			rating, uid := it.Endorsement.Rating, it.Endorsement.UserID
			row.SourceRating, row.SourceUserID = &rating, &uid
		}
		doc.Items = append(doc.Items, row)
	}
	return doc
}
