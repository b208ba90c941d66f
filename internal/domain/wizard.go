package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Step string

const (
	StepTickets   Step = "tickets"
	StepAttendees Step = "attendees"
	StepPromo     Step = "promo"
	StepReview    Step = "review"
	StepPayment   Step = "payment"
)

var wizardSteps = []Step{StepTickets, StepAttendees, StepPromo, StepReview, StepPayment}

func (s Step) index() int {
	for i, v := range wizardSteps {
		if v == s {
			return i
		}
	}
	return -1
}

type WizardMode string

const (
	ModePurchase WizardMode = "purchase"
	ModeUpgrade  WizardMode = "upgrade"
)

type UpgradeContext struct {
	BaseTicketID   uuid.UUID       `json:"baseTicketId"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	TargetTierID   uuid.UUID       `json:"targetTierId"`
	TargetTierName string          `json:"targetTierName"`
	TargetPrice    decimal.Decimal `json:"targetPrice"`
}

// SettledLine tracks one tier's payment across submits. IntentID is kept as
// soon as the intent exists so a retried confirm reuses it; Outcome is set
// once the server has decided.
type SettledLine struct {
	TierID   uuid.UUID        `json:"tierId"`
	IntentID uuid.UUID        `json:"intentId"`
	Outcome  *PurchaseOutcome `json:"outcome,omitempty"`
}

// WizardState is everything a checkout needs to resume; it round-trips through JSON.
type WizardState struct {
	ID        uuid.UUID         `json:"id"`
	EventID   uuid.UUID         `json:"eventId"`
	Mode      WizardMode        `json:"mode"`
	Step      Step              `json:"step"`
	Items     []TicketSelection `json:"items"`
	Attendees []AttendeeInfo    `json:"attendees"`
	Promo     PromoState        `json:"promo"`
	Capacity  CapacityState     `json:"capacity"`
	Upgrade   *UpgradeContext   `json:"upgrade,omitempty"`
	Settled   []SettledLine     `json:"settled,omitempty"`
	Outcome   *PurchaseOutcome  `json:"outcome,omitempty"`
}

type Wizard struct {
	state  WizardState
	sel    *SelectionState
	promos PromoCatalog
}

func NewWizard(event Event, promos PromoCatalog) (*Wizard, error) {
	catalog, err := NewTierCatalog(event.Tiers)
	if err != nil {
		return nil, err
	}
	w := &Wizard{
		state: WizardState{
			ID:        uuid.New(),
			EventID:   event.ID,
			Mode:      ModePurchase,
			Step:      StepTickets,
			Attendees: BlankAttendees(0),
			Capacity:  event.Capacity(),
		},
		sel:    NewSelectionState(catalog),
		promos: promos,
	}
	return w, nil
}

// NewUpgradeWizard prices a single target tier at the delta over the holder's
// best confirmed ticket for the event.
func NewUpgradeWizard(event Event, held []Ticket, targetTierID uuid.UUID, promos PromoCatalog) (*Wizard, error) {
	catalog, err := NewTierCatalog(event.Tiers)
	if err != nil {
		return nil, err
	}
	base, err := BaseTicket(held, event.ID)
	if err != nil {
		return nil, err
	}
	target, ok := catalog.Tier(targetTierID)
	if !ok {
		return nil, ErrTierNotFound
	}
	cost, err := UpgradeCost(target, base.Price)
	if err != nil {
		return nil, err
	}
	single, err := NewTierCatalog([]TicketTier{{
		ID:          target.ID,
		Name:        target.Name,
		Price:       cost,
		Description: target.Description,
	}})
	if err != nil {
		return nil, err
	}

	w := &Wizard{
		state: WizardState{
			ID:        uuid.New(),
			EventID:   event.ID,
			Mode:      ModeUpgrade,
			Step:      StepTickets,
			Attendees: BlankAttendees(0),
			Capacity:  event.Capacity(),
			Upgrade: &UpgradeContext{
				BaseTicketID:   base.ID,
				CurrentPrice:   base.Price,
				TargetTierID:   target.ID,
				TargetTierName: target.Name,
				TargetPrice:    target.Price,
			},
		},
		sel:    NewSelectionState(single),
		promos: promos,
	}
	return w, nil
}

func RestoreWizard(state WizardState, promos PromoCatalog) (*Wizard, error) {
	if state.Step.index() < 0 {
		return nil, fmt.Errorf("unknown wizard step %q", state.Step)
	}
	if state.Mode == "" {
		state.Mode = ModePurchase
	}
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	sel := RestoreSelectionState(state.Items)
	state.Items = nil
	if state.Attendees == nil {
		state.Attendees = BlankAttendees(0)
	}
	return &Wizard{state: state, sel: sel, promos: promos}, nil
}

func (w *Wizard) State() WizardState {
	st := w.state
	st.Items = w.sel.Items()
	st.Attendees = append([]AttendeeInfo(nil), w.state.Attendees...)
	if st.Attendees == nil {
		st.Attendees = []AttendeeInfo{}
	}
	st.Settled = append([]SettledLine(nil), w.state.Settled...)
	return st
}

func (w *Wizard) ID() uuid.UUID { return w.state.ID }
func (w *Wizard) Step() Step { return w.state.Step }
func (w *Wizard) Mode() WizardMode { return w.state.Mode }
func (w *Wizard) EventID() uuid.UUID { return w.state.EventID }
func (w *Wizard) Completed() bool { return w.state.Outcome != nil }
func (w *Wizard) Upgrade() *UpgradeContext {
	if w.state.Upgrade == nil {
		return nil
	}
	u := *w.state.Upgrade
	return &u
}

func (w *Wizard) Selection() []TicketSelection { return w.sel.Chosen() }
func (w *Wizard) Items() []TicketSelection { return w.sel.Items() }
func (w *Wizard) Promo() PromoState { return w.state.Promo }
func (w *Wizard) Capacity() CapacityState { return w.state.Capacity }

func (w *Wizard) Attendees() []AttendeeInfo {
	return append([]AttendeeInfo(nil), w.state.Attendees...)
}

// editable refuses changes once the order is paid for, in whole or in part.
func (w *Wizard) editable() error {
	if w.Completed() {
		return ErrCheckoutCompleted
	}
	if len(w.state.Settled) > 0 {
		return ErrPaymentStarted
	}
	return nil
}

// UpdateQuantity changes one tier. Any effective change throws away attendee
// input and rebuilds it blank at the new total; a wizard already past the
// attendee step is sent back to it. An increase past MaxTicketsPerOrder in
// total is refused.
func (w *Wizard) UpdateQuantity(tierID uuid.UUID, delta int) (bool, error) {
	if err := w.editable(); err != nil {
		return false, err
	}
	if delta > MaxTicketsPerOrder-w.sel.TotalTickets() {
		return false, ErrOrderTooLarge
	}
	if !w.sel.UpdateQuantity(tierID, delta) {
		return false, nil
	}
	w.state.Attendees = BlankAttendees(w.sel.TotalTickets())
	if w.state.Step.index() > StepAttendees.index() {
		w.state.Step = StepAttendees
	}
	if w.sel.TotalTickets() == 0 {
		w.state.Step = StepTickets
	}
	return true, nil
}

func (w *Wizard) SetAttendee(index int, a AttendeeInfo) error {
	if err := w.editable(); err != nil {
		return err
	}
	if index < 0 || index >= len(w.state.Attendees) {
		return ErrAttendeeIndex
	}
	w.state.Attendees[index] = a
	return nil
}

func (w *Wizard) ApplyPromo(code string) error {
	if err := w.editable(); err != nil {
		return err
	}
	if w.state.Mode == ModeUpgrade {
		return ErrPromoNotApplicable
	}
	return w.state.Promo.Apply(w.promos, code)
}

func (w *Wizard) RemovePromo() error {
	if err := w.editable(); err != nil {
		return err
	}
	w.state.Promo.Remove()
	return nil
}

// SetCapacity replaces the advisory snapshot with a fresh fetch.
func (w *Wizard) SetCapacity(c CapacityState) {
	w.state.Capacity = c
}

func (w *Wizard) Next() error {
	if w.Completed() {
		return ErrCheckoutCompleted
	}
	switch w.state.Step {
	case StepTickets:
		if w.sel.TotalTickets() == 0 {
			return ErrNoTicketsSelected
		}
		if len(w.state.Attendees) != w.sel.TotalTickets() {
			w.state.Attendees = BlankAttendees(w.sel.TotalTickets())
		}
	case StepAttendees:
		if err := ValidateAttendees(w.state.Attendees, w.sel.TotalTickets()); err != nil {
			return err
		}
	case StepPayment:
		return ErrPaymentStepTerminal
	}
	w.state.Step = wizardSteps[w.state.Step.index()+1]
	return nil
}

func (w *Wizard) Back() error {
	if err := w.editable(); err != nil {
		return err
	}
	i := w.state.Step.index()
	if i <= 0 {
		return ErrFirstStep
	}
	w.state.Step = wizardSteps[i-1]
	return nil
}

// Complete records what the server did. Only valid from the payment step.
func (w *Wizard) Complete(outcome PurchaseOutcome) error {
	if w.Completed() {
		return ErrCheckoutCompleted
	}
	if w.state.Step != StepPayment {
		return ErrNotAtPayment
	}
	w.state.Outcome = &outcome
	return nil
}

func (w *Wizard) Outcome() *PurchaseOutcome { return w.state.Outcome }

// Settlement returns what a submit has recorded for tierID so far.
func (w *Wizard) Settlement(tierID uuid.UUID) (SettledLine, bool) {
	for _, s := range w.state.Settled {
		if s.TierID == tierID {
			return s, true
		}
	}
	return SettledLine{}, false
}

// RecordIntent notes the intent created for tierID. It locks the selection
// against edits until the checkout completes.
func (w *Wizard) RecordIntent(tierID, intentID uuid.UUID) {
	w.setSettled(SettledLine{TierID: tierID, IntentID: intentID})
}

// RecordOutcome marks tierID as decided by the server.
func (w *Wizard) RecordOutcome(tierID uuid.UUID, out PurchaseOutcome) {
	s, _ := w.Settlement(tierID)
	s.TierID = tierID
	s.Outcome = &out
	w.setSettled(s)
}

// DropIntent forgets an unconfirmed intent, e.g. one that expired, so the
// next submit creates a fresh one. Decided lines are kept.
func (w *Wizard) DropIntent(tierID uuid.UUID) {
	kept := w.state.Settled[:0]
	for _, s := range w.state.Settled {
		if s.TierID == tierID && s.Outcome == nil {
			continue
		}
		kept = append(kept, s)
	}
	w.state.Settled = kept
}

func (w *Wizard) setSettled(line SettledLine) {
	for i := range w.state.Settled {
		if w.state.Settled[i].TierID == line.TierID {
			w.state.Settled[i] = line
			return
		}
	}
	w.state.Settled = append(w.state.Settled, line)
}

type SummaryLine struct {
	TierID   uuid.UUID       `json:"tierId"`
	TierName string          `json:"tierName"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"unitPrice"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Summary struct {
	Mode            WizardMode      `json:"mode"`
	Lines           []SummaryLine   `json:"lines"`
	TotalTickets    int             `json:"totalTickets"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	PromoCode       string          `json:"promoCode,omitempty"`
	DiscountPercent int             `json:"discountPercent"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	Remaining       int             `json:"remaining"`
	GoesToWaitlist  bool            `json:"goesToWaitlist"`
}

func (w *Wizard) Summary() Summary {
	s := Summary{
		Mode:         w.state.Mode,
		TotalTickets: w.sel.TotalTickets(),
		Subtotal:     w.sel.TotalPrice(),
		Remaining:    w.state.Capacity.Remaining(),
	}
	for _, it := range w.sel.Chosen() {
		s.Lines = append(s.Lines, SummaryLine{
			TierID:   it.TierID,
			TierName: it.TierName,
			Quantity: it.Quantity,
			Price:    it.Price,
			Subtotal: it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	if w.state.Promo.Applied {
		s.PromoCode = w.state.Promo.PromoCode
		s.DiscountPercent = w.state.Promo.DiscountPercent
	}
	s.Discount = ComputeDiscount(s.Subtotal, s.DiscountPercent)
	s.Total = s.Subtotal.Sub(s.Discount)
	s.GoesToWaitlist = GoesToWaitlist(s.TotalTickets, w.state.Capacity.Confirmed, w.state.Capacity.MaxAttendees)
	return s
}
