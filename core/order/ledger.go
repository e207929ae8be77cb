// Package order holds the in-memory record of items and running total
// for a single drive-thru conversation.
package order

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jinzhu/copier"
)

// LineItem is a single priced row of the order. Prices are integer
// cents so the running total stays exact.
type LineItem struct {
	Name           string
	Quantity       int
	UnitPriceCents int64
}

// MarshalJSON renders the wire shape used in function-call results,
// with the price expressed in dollars.
func (i LineItem) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"name":%q,"quantity":%d,"price":%s}`,
		i.Name, i.Quantity, FormatCents(i.UnitPriceCents))), nil
}

// Snapshot is a point-in-time copy of the ledger, safe to hand to
// presentation code.
type Snapshot struct {
	Items      []LineItem
	TotalCents int64
}

// ReduceResult describes what a Reduce call did to the matched item.
type ReduceResult struct {
	// Removed is true when the whole row was taken off the order,
	// false when the quantity was only decremented.
	Removed bool
	// Item is the affected row as it was before removal, or after the
	// decrement.
	Item LineItem
}

// Ledger is the mutable order state. Mutations happen on the session
// runtime goroutine only, but snapshots are read concurrently by the
// presentation layer, so access is mutex-guarded.
type Ledger struct {
	mu         sync.RWMutex
	items      []LineItem
	totalCents int64
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Add appends a new line item, or increments the quantity of an
// existing row with the same name. The total is updated in the same
// critical section as the item change. Quantities below one are
// rejected without mutation.
func (l *Ledger) Add(name string, quantity int, unitPriceCents int64) (LineItem, error) {
	if quantity < 1 {
		return LineItem{}, fmt.Errorf("invalid quantity %d for %q", quantity, name)
	}
	if unitPriceCents < 0 {
		return LineItem{}, fmt.Errorf("invalid unit price %d for %q", unitPriceCents, name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for idx := range l.items {
		if l.items[idx].Name == name {
			l.items[idx].Quantity += quantity
			l.totalCents += int64(quantity) * unitPriceCents
			l.checkTotalLocked()
			return l.items[idx], nil
		}
	}

	item := LineItem{Name: name, Quantity: quantity, UnitPriceCents: unitPriceCents}
	l.items = append(l.items, item)
	l.totalCents += int64(quantity) * unitPriceCents
	l.checkTotalLocked()
	return item, nil
}

// Reduce decrements the named row by quantity, removing it entirely
// when the requested quantity meets or exceeds what is on the order.
// The total drops by min(quantity, existing) * unit price. A missing
// name reports ok=false with no mutation.
func (l *Ledger) Reduce(name string, quantity int) (ReduceResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for idx := range l.items {
		if l.items[idx].Name != name {
			continue
		}

		item := l.items[idx]
		if item.Quantity > quantity {
			l.items[idx].Quantity -= quantity
			l.totalCents -= int64(quantity) * item.UnitPriceCents
			l.checkTotalLocked()
			return ReduceResult{Removed: false, Item: l.items[idx]}, true
		}

		l.items = append(l.items[:idx], l.items[idx+1:]...)
		l.totalCents -= int64(item.Quantity) * item.UnitPriceCents
		l.checkTotalLocked()
		return ReduceResult{Removed: true, Item: item}, true
	}

	return ReduceResult{}, false
}

// Clear empties the order and resets the total.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	l.totalCents = 0
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *Ledger) TotalCents() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalCents
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := Snapshot{TotalCents: l.totalCents}
	copier.Copy(&snapshot.Items, l.items)
	return snapshot
}

// Summary is a deterministic human-readable listing of the order. An
// empty ledger yields a distinct empty-order message rather than a
// zero-item listing.
func (l *Ledger) Summary() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.items) == 0 {
		return "Your order is currently empty."
	}

	var summary strings.Builder
	summary.WriteString("Your order summary:\n")
	for _, item := range l.items {
		fmt.Fprintf(&summary, "- %d x %s ($%s)\n",
			item.Quantity, item.Name, FormatCents(int64(item.Quantity)*item.UnitPriceCents))
	}
	fmt.Fprintf(&summary, "Total: $%s", FormatCents(l.totalCents))
	return summary.String()
}

// checkTotalLocked recomputes the total from the rows and corrects the
// incremental value if the two ever disagree. Caller must hold the lock.
func (l *Ledger) checkTotalLocked() {
	var sum int64
	for _, item := range l.items {
		sum += int64(item.Quantity) * item.UnitPriceCents
	}
	if sum != l.totalCents {
		logger.Warn("order total drifted, correcting", "have", l.totalCents, "want", sum)
		l.totalCents = sum
	}
}

// FormatCents renders an amount of cents as a dollar string without
// going through binary floats.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
