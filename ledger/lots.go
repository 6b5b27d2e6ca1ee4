package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is one opening fill's remaining open quantity. UnitCost is the
// fee-inclusive cost per unit, so partially consuming a lot attributes
// entry fees proportionally without tracking them separately.
type Lot struct {
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	OpenedAt time.Time
}

// lotQueue is an arena-indexed FIFO deque: pops advance head into the
// backing slice and a partially consumed lot keeps its remainder at the
// front. The arena compacts once the dead prefix dominates.
type lotQueue struct {
	lots []Lot
	head int
}

func (q *lotQueue) push(l Lot) {
	q.lots = append(q.lots, l)
}

func (q *lotQueue) len() int {
	return len(q.lots) - q.head
}

// open returns the live lots, oldest first. The returned slice aliases the
// arena; callers must not hold it across mutations.
func (q *lotQueue) open() []Lot {
	return q.lots[q.head:]
}

func (q *lotQueue) totalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range q.open() {
		total = total.Add(l.Quantity)
	}
	return total
}

// consume pops quantity off the front of the queue and returns the
// fee-inclusive cost basis of the consumed quantity. The caller must have
// checked quantity <= totalQuantity().
func (q *lotQueue) consume(quantity decimal.Decimal) decimal.Decimal {
	basis := decimal.Zero
	remaining := quantity
	for remaining.IsPositive() && q.head < len(q.lots) {
		lot := &q.lots[q.head]
		if lot.Quantity.LessThanOrEqual(remaining) {
			basis = basis.Add(lot.Quantity.Mul(lot.UnitCost))
			remaining = remaining.Sub(lot.Quantity)
			lot.Quantity = decimal.Zero
			q.head++
			continue
		}
		// Partial consumption: leave the remainder in place at the front.
		basis = basis.Add(remaining.Mul(lot.UnitCost))
		lot.Quantity = lot.Quantity.Sub(remaining)
		remaining = decimal.Zero
	}
	q.maybeCompact()
	return basis
}

func (q *lotQueue) maybeCompact() {
	if q.head < 32 || q.head < len(q.lots)/2 {
		return
	}
	n := copy(q.lots, q.lots[q.head:])
	q.lots = q.lots[:n]
	q.head = 0
}
