package engine

import "github.com/ChuLiYu/cookbot/pkg/types"

// Match picks at most one (bot, order) pairing.
//
// Orders: the first pending VIP order in creation order, otherwise the first
// pending order of any type. Bots: the first idle bot in snapshot order.
// Match has no side effects; the caller applies the pairing.
func Match(bots []types.Bot, orders []types.Order) (botIdx, orderIdx int, ok bool) {
	if len(orders) == 0 {
		return -1, -1, false
	}

	botIdx = -1
	for i := range bots {
		if bots[i].Status == types.BotIdle {
			botIdx = i
			break
		}
	}
	if botIdx == -1 {
		return -1, -1, false
	}

	orderIdx = -1
	for i := range orders {
		if orders[i].Status == types.OrderPending && orders[i].Type == types.OrderVIP {
			orderIdx = i
			break
		}
	}
	if orderIdx == -1 {
		for i := range orders {
			if orders[i].Status == types.OrderPending {
				orderIdx = i
				break
			}
		}
	}
	if orderIdx == -1 {
		return -1, -1, false
	}

	return botIdx, orderIdx, true
}
