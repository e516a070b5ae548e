package ledger

// Lot is the unconsumed portion of an earning entry, the unit of FIFO
// allocation. Lots are fed to Allocate oldest-first within their class.
type Lot struct {
	EntryID   int64
	Class     CreditClass
	Remaining int
}

// Deduction is one lot decrement produced by an allocation.
type Deduction struct {
	EntryID      int64
	Class        CreditClass
	Amount       int
	NewRemaining int
}

// Allocation is the full plan for a spend: which lots to decrement and how the
// amount splits across the free and paid pools.
type Allocation struct {
	Deductions []Deduction
	FreeSpent  int
	PaidSpent  int
}

// SpendClass is the class recorded on the spend entry: free when the whole
// amount came out of the free pool, paid as soon as paid credits were touched.
func (a *Allocation) SpendClass() CreditClass {
	if a.PaidSpent > 0 {
		return ClassPaid
	}
	return ClassFree
}

// Allocate walks free lots before paid lots, oldest lot first within each
// class, deducting min(remaining, stillOwed) from each until the amount is
// covered. It mutates nothing; the caller applies the returned deductions.
// When the available lots cannot cover the amount it returns
// InsufficientCreditsError with the actually spendable total.
func Allocate(freeLots, paidLots []Lot, amount int) (*Allocation, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	available := 0
	for _, l := range freeLots {
		available += l.Remaining
	}
	for _, l := range paidLots {
		available += l.Remaining
	}
	if available < amount {
		return nil, &InsufficientCreditsError{Have: available, Need: amount}
	}

	alloc := &Allocation{}
	stillOwed := amount

	for _, lots := range [][]Lot{freeLots, paidLots} {
		for _, lot := range lots {
			if stillOwed == 0 {
				break
			}
			if lot.Remaining <= 0 {
				continue
			}

			take := lot.Remaining
			if take > stillOwed {
				take = stillOwed
			}

			alloc.Deductions = append(alloc.Deductions, Deduction{
				EntryID:      lot.EntryID,
				Class:        lot.Class,
				Amount:       take,
				NewRemaining: lot.Remaining - take,
			})
			if lot.Class == ClassFree {
				alloc.FreeSpent += take
			} else {
				alloc.PaidSpent += take
			}
			stillOwed -= take
		}
	}

	return alloc, nil
}
