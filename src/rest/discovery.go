package rest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hendrywilliam/sirengate/src/structs"
)

// GatewayBot fetches the gateway url and session start limits.
// https://discord.com/developers/docs/events/gateway#get-gateway-bot
func (r *REST) GatewayBot(ctx context.Context) (*structs.GatewayBot, error) {
	data, err := r.Get(ctx, "/gateway/bot", nil)
	if err != nil {
		return nil, err
	}
	gb := &structs.GatewayBot{}
	if err := json.Unmarshal(data, gb); err != nil {
		return nil, fmt.Errorf("decode gateway bot: %w", err)
	}
	if gb.URL == "" {
		return nil, fmt.Errorf("gateway bot: empty url")
	}
	if gb.Shards > 1 {
		r.log.Warn().
			Int("shards", gb.Shards).
			Msg("recommended shard count is above 1, running a single connection")
	}
	return gb, nil
}
