package host

import (
	"context"
	"encoding/json"

	"lexd/pkg/types"
)

// Handle executes one request and builds its response. Requests are
// served strictly one at a time; the host blocks inside synchronous
// generation, which is the accepted serialization point.
func (h *Host) Handle(ctx context.Context, req types.Request) types.Response {
	h.log.Debug().Str("request_id", req.ID).Str("action", string(req.Action)).Msg("handling request")

	switch req.Action {
	case types.ActionLoadEmbedder, types.ActionLoadUtility, types.ActionLoadReasoning:
		slot, _ := types.SlotForLoadAction(req.Action)
		if err := h.Load(ctx, slot); err != nil {
			return failure(req.ID, err)
		}
		return success(req.ID, nil)

	case types.ActionGenerate:
		var p types.GeneratePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return failure(req.ID, err)
		}
		res, err := h.Generate(ctx, p)
		if err != nil {
			return failure(req.ID, err)
		}
		return success(req.ID, res)

	case types.ActionEmbed:
		var p types.EmbedPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return failure(req.ID, err)
		}
		res, err := h.Embed(ctx, p)
		if err != nil {
			return failure(req.ID, err)
		}
		return success(req.ID, res)

	case types.ActionUnloadAll:
		h.UnloadAll()
		return success(req.ID, nil)

	case types.ActionStatus:
		return success(req.ID, h.Status())

	default:
		return types.Response{RequestID: req.ID, Success: false, Error: "unknown action: " + string(req.Action)}
	}
}

func success(id string, data any) types.Response {
	resp := types.Response{RequestID: id, Success: true}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			resp.Data = b
		}
	}
	return resp
}

func failure(id string, err error) types.Response {
	return types.Response{RequestID: id, Success: false, Error: err.Error()}
}
