package core

// Interaction 是交互表中的一行：(userId, itemId, rating)。
// 同一 (userId, itemId) 至多一行；行之间没有顺序保证。
type Interaction struct {
	UserID int64   `json:"user_id"`
	ItemID int64   `json:"item_id"`
	Rating float64 `json:"rating"`
}

// ItemMeta 是物品元数据（标题、类型等），只读，归 InteractionStore 所有。
type ItemMeta struct {
	ItemID int64    `json:"item_id"`
	Title  string   `json:"title"`
	Genres []string `json:"genres,omitempty"`

	// Fields 是其他元数据列（如 year / imdbId），按列名索引
	Fields map[string]string `json:"fields,omitempty"`
}

// Neighbor 是一个近邻用户及其到目标用户的距离。
type Neighbor struct {
	UserID   int64   `json:"user_id"`
	Distance float64 `json:"distance"`
}

// NeighborSet 是目标用户的近邻列表（最近的在前）。
// 不变量：长度 <= K，且不包含目标用户本身。
type NeighborSet struct {
	TargetUserID int64      `json:"target_user_id"`
	Neighbors    []Neighbor `json:"neighbors"`
}

// IDs 返回近邻用户 ID，保持原有顺序。
func (s NeighborSet) IDs() []int64 {
	ids := make([]int64, len(s.Neighbors))
	for i, n := range s.Neighbors {
		ids[i] = n.UserID
	}
	return ids
}

func (s NeighborSet) Len() int { return len(s.Neighbors) }

// Endorsement 记录某个近邻对候选物品的正向评分。
type Endorsement struct {
	UserID int64   `json:"user_id"`
	Rating float64 `json:"rating"`
}

// Candidates 是候选集：目标用户未交互过、但至少一个近邻正向评分过的物品。
// IDs 升序且无重复；Endorsements 只用于输出列，不影响集合成员关系。
type Candidates struct {
	UserID       int64
	IDs          []int64
	Endorsements map[int64]Endorsement
}

func (c *Candidates) Len() int {
	if c == nil {
		return 0
	}
	return len(c.IDs)
}

func (c *Candidates) Empty() bool { return c.Len() == 0 }

// Recommendation 是一次 Pipeline 调用的最终结果，落地后不再修改。
type Recommendation struct {
	RunID  string
	UserID int64
	Items  []*Item
}
