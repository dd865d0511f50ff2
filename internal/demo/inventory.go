package demo

import (
	"fmt"

	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/state"
)

// Inventory actions.
const (
	ActionItemAdd     = "inventory/add"
	ActionItemRestock = "inventory/restock"
	ActionItemReserve = "inventory/reserve"
	ActionItemRemove  = "inventory/remove"
)

// InventoryReducers returns the reducers for the inventory store.
//
//	inventory/add      {name, qty, price}  new item
//	inventory/restock  {id, qty}           qty += n
//	inventory/reserve  {id, qty}           qty -= n, fails if short
//	inventory/remove   {id}
func InventoryReducers() []engine.Reducer {
	return []engine.Reducer{
		{Slice: "items", Fn: reduceItems},
		{Slice: "stats", Fn: reduceStats},
	}
}

func reduceItems(in engine.ReduceInput) (*ir.Info, []state.Op) {
	p := in.Action.Payload
	switch in.Action.Type {
	case ActionItemAdd:
		name, _ := p.Str("name")
		qty, _ := p.Int("qty")
		price, _ := p.Int("price")
		if name == "" || qty < 0 || price < 0 {
			return failed("item needs a name and non-negative qty and price"), nil
		}
		id, _ := in.State.NextID("items")
		return &ir.Info{Data: ir.Object{"_id": ir.Int(id)}}, []state.Op{
			state.Add{Doc: ir.Object{"name": ir.String(name), "qty": ir.Int(qty), "price": ir.Int(price)}},
		}

	case ActionItemRestock, ActionItemReserve:
		id, _ := p.Int("id")
		n, _ := p.Int("qty")
		if _, ok := in.State.GetValue("items", "qty", id); !ok {
			return failed(fmt.Sprintf("item %d not found", id)), nil
		}
		have := intAt(in.State, "items", "qty", id)
		if n <= 0 {
			return failed("qty must be positive"), nil
		}
		next := have + n
		if in.Action.Type == ActionItemReserve {
			if have < n {
				return failed(fmt.Sprintf("item %d: %d in stock, %d requested", id, have, n)), nil
			}
			next = have - n
		}
		return &ir.Info{Data: ir.Object{"qty": ir.Int(next)}}, []state.Op{
			state.Update{Filter: state.ByID(id), SetFields: ir.Object{"qty": ir.Int(next)}},
		}

	case ActionItemRemove:
		id, _ := p.Int("id")
		if _, ok := in.State.GetValue("items", "", id); !ok {
			return failed(fmt.Sprintf("item %d not found", id)), nil
		}
		return &ir.Info{}, []state.Op{state.Remove{ID: id}}
	}
	return nil, nil
}

// reduceStats keeps product and unit totals in step with items. It reads the
// items slice as of the start of the dispatch and repeats the checks
// reduceItems makes, so both agree on whether the action applies.
func reduceStats(in engine.ReduceInput) (*ir.Info, []state.Op) {
	p := in.Action.Payload
	np, nu := intAt(in.State, "stats", "products"), intAt(in.State, "stats", "units")

	switch in.Action.Type {
	case ActionItemAdd:
		name, _ := p.Str("name")
		qty, _ := p.Int("qty")
		price, _ := p.Int("price")
		if name == "" || qty < 0 || price < 0 {
			return nil, nil
		}
		np, nu = np+1, nu+qty
	case ActionItemRestock, ActionItemReserve:
		id, _ := p.Int("id")
		n, _ := p.Int("qty")
		if _, ok := in.State.GetValue("items", "qty", id); !ok || n <= 0 {
			return nil, nil
		}
		if in.Action.Type == ActionItemReserve {
			if intAt(in.State, "items", "qty", id) < n {
				return nil, nil
			}
			n = -n
		}
		nu += n
	case ActionItemRemove:
		id, _ := p.Int("id")
		if _, ok := in.State.GetValue("items", "qty", id); !ok {
			return nil, nil
		}
		np, nu = np-1, nu-intAt(in.State, "items", "qty", id)
	default:
		return nil, nil
	}
	return nil, []state.Op{state.Update{SetFields: ir.Object{"products": ir.Int(np), "units": ir.Int(nu)}}}
}

// intAt reads an integer field. Missing or non-integer values read as 0.
func intAt(st state.Reader, slice, path string, id ...int64) int64 {
	v, _ := st.GetValue(slice, path, id...)
	n, _ := v.(ir.Int)
	return int64(n)
}

func failed(msg string) *ir.Info {
	return &ir.Info{Failed: true, Message: msg}
}
