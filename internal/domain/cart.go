package domain

import "github.com/shopspring/decimal"

type CartLine struct {
	Item     Item `json:"item"`
	Quantity int  `json:"quantity"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Item.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered list of lines, at most one per item id, in first-add order.
// Every method returns a new Cart and leaves the receiver untouched.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Units is the number of individual items across all lines.
func (c Cart) Units() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c Cart) indexOf(itemID string) int {
	for i, l := range c.Lines {
		if l.Item.ID == itemID {
			return i
		}
	}
	return -1
}

func (c Cart) Line(itemID string) (CartLine, bool) {
	if i := c.indexOf(itemID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

func (c Cart) Clone() Cart {
	if c.Lines == nil {
		return Cart{}
	}
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}

func (c Cart) Add(item Item) Cart {
	out := c.Clone()
	if i := out.indexOf(item.ID); i >= 0 {
		out.Lines[i].Quantity++
		return out
	}
	out.Lines = append(out.Lines, CartLine{Item: item, Quantity: 1})
	return out
}

func (c Cart) Remove(itemID string) Cart {
	out := Cart{}
	for _, l := range c.Lines {
		if l.Item.ID != itemID {
			out.Lines = append(out.Lines, l)
		}
	}
	return out
}

// SetQuantity sets an absolute quantity; quantity <= 0 removes the line.
func (c Cart) SetQuantity(itemID string, quantity int) Cart {
	if quantity <= 0 {
		return c.Remove(itemID)
	}
	out := c.Clone()
	if i := out.indexOf(itemID); i >= 0 {
		out.Lines[i].Quantity = quantity
	}
	return out
}

// Subtract takes the quantities of ordered off the cart, dropping lines that reach zero.
func (c Cart) Subtract(ordered []CartLine) Cart {
	out := c.Clone()
	for _, o := range ordered {
		if l, ok := out.Line(o.Item.ID); ok {
			out = out.SetQuantity(o.Item.ID, l.Quantity-o.Quantity)
		}
	}
	return out
}
