package filter

import (
	"context"
	"fmt"

	"github.com/rushteam/simrec/core"
	"github.com/rushteam/simrec/pkg/utils"
)

// Apply 依次用 filters 检查每个候选，任一过滤器返回 true 即移除。
// 过滤器错误是致命的：返回错误而不是静默保留或丢弃候选。
// 返回的新候选集保持原有顺序，Endorsements 原样保留。
func Apply(
	ctx context.Context,
	rctx *core.RecommendContext,
	filters []Filter,
	cands *core.Candidates,
	meta core.InteractionStore,
) (*core.Candidates, error) {
	if len(filters) == 0 || cands.Empty() {
		return cands, nil
	}

	needMeta := false
	for _, f := range filters {
		if mf, ok := f.(MetadataFilter); ok && mf.NeedsMetadata() {
			needMeta = true
			break
		}
	}
	if needMeta && meta == nil {
		return nil, core.NewInvalidParameterError(core.ModuleFilter, "metadata filters configured without a metadata store")
	}

	out := &core.Candidates{
		UserID:       cands.UserID,
		IDs:          make([]int64, 0, len(cands.IDs)),
		Endorsements: cands.Endorsements,
	}
	for _, id := range cands.IDs {
		if err := ctx.Err(); err != nil {
			return nil, core.FromContext(core.ModuleFilter, err)
		}

		item := core.NewItem(id)
		item.Endorsement = cands.Endorsements[id]
		if needMeta {
			m, err := meta.MetadataOf(ctx, id)
			if err != nil {
				if core.IsNotFound(err) {
					return nil, core.NewMissingMetadataError(core.ModuleFilter, id).WithUser(cands.UserID)
				}
				return nil, err
			}
			item.Meta = m
		}

		dropped := false
		for _, f := range filters {
			ok, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				return nil, fmt.Errorf("filter %s on item %d: %w", f.Name(), id, err)
			}
			if ok {
				dropped = true
				item.PutLabel("filtered", utils.Label{Value: "true", Source: f.Name()})
				break
			}
		}
		if !dropped {
			out.IDs = append(out.IDs, id)
		}
	}
	return out, nil
}
