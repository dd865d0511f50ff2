package demo

import (
	"fmt"

	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/state"
)

// Order actions.
const (
	ActionOrderPlace  = "order/place"
	ActionOrderStatus = "order/status"
)

// OrderReducers returns the reducers for the orders store. Placing an order
// reserves the next number from order_seq through pass-in, so the counter
// and the order are written in one record.
//
//	order/place   {item, qty, amount}  new order with seq = order_seq+1
//	order/status  {id, status}
func OrderReducers() []engine.Reducer {
	return []engine.Reducer{
		{Slice: "order_seq", Fn: reduceOrderSeq},
		{Slice: "orders", PassIn: "order_seq", Fn: reduceOrders},
	}
}

func reduceOrderSeq(in engine.ReduceInput) (*ir.Info, []state.Op) {
	if in.Action.Type != ActionOrderPlace {
		return nil, nil
	}
	return &ir.Info{Data: ir.Object{"seq": ir.Int(intAt(in.State, "order_seq", "") + 1)}}, []state.Op{state.Increment{}}
}

func reduceOrders(in engine.ReduceInput) (*ir.Info, []state.Op) {
	p := in.Action.Payload
	switch in.Action.Type {
	case ActionOrderPlace:
		item, _ := p.Int("item")
		qty, _ := p.Int("qty")
		amount, _ := p.Int("amount")
		seq, _ := in.PassIn.Info.Data.Int("seq")
		if qty <= 0 {
			// The number is still consumed: pass-in ops are not rolled back.
			return &ir.Info{Failed: true, Message: "qty must be positive", Data: ir.Object{"seq": ir.Int(seq)}}, nil
		}
		id, _ := in.State.NextID("orders")
		return &ir.Info{Data: ir.Object{"_id": ir.Int(id), "seq": ir.Int(seq)}}, []state.Op{state.Add{Doc: ir.Object{
			"item":   ir.Int(item),
			"qty":    ir.Int(qty),
			"amount": ir.Int(amount),
			"seq":    ir.Int(seq),
			"status": ir.String("placed"),
		}}}

	case ActionOrderStatus:
		id, _ := p.Int("id")
		status, _ := p.Str("status")
		if _, ok := in.State.GetValue("orders", "", id); !ok {
			return failed(fmt.Sprintf("order %d not found", id)), nil
		}
		return &ir.Info{}, []state.Op{state.Update{Filter: state.ByID(id), SetFields: ir.Object{"status": ir.String(status)}}}
	}
	return nil, nil
}
