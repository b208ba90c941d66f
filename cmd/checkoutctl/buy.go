package main

import (
	"bufio"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/checkout"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
)

type purchaseOpts struct {
	tiers     []string
	attendees []string
	promo     string
	quantity  int
	target    string
	dryRun    bool
}

func (o *purchaseOpts) bindAttendeeFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.attendees, "attendee", nil, `attendee as "Name <email>", once per ticket; missing ones are prompted for`)
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "stop at the review step and print the summary")
}

func newBuyCmd(a *app) *cobra.Command {
	o := &purchaseOpts{}
	cmd := &cobra.Command{
		Use:   "buy EVENT_ID",
		Short: "Buy tickets; a full event puts the order on the waitlist",
		Example: `  checkoutctl buy 6f1c... --tier General=2 --tier VIP=1 \
    --attendee "Ana Lima <ana@example.com>" --attendee "Bo <bo@example.com>" --attendee "Cy <cy@example.com>" \
    --promo SAVE10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			if len(o.tiers) == 0 {
				return fmt.Errorf("at least one --tier NAME_OR_ID=QTY is required")
			}

			flow := checkout.NewFlow(a.client(), nil, logger.Logger)
			w, err := flow.Start(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			for _, arg := range o.tiers {
				tierID, qty, err := parseTierArg(w.Items(), arg)
				if err != nil {
					return err
				}
				if _, err := w.UpdateQuantity(tierID, qty); err != nil {
					return err
				}
			}
			return a.runWizard(cmd, flow, w, o)
		},
	}
	cmd.Flags().StringArrayVar(&o.tiers, "tier", nil, "tier name or id with quantity, e.g. VIP=2 (repeatable)")
	cmd.Flags().StringVar(&o.promo, "promo", "", "promo code")
	o.bindAttendeeFlags(cmd)
	return cmd
}

func newUpgradeCmd(a *app) *cobra.Command {
	o := &purchaseOpts{}
	cmd := &cobra.Command{
		Use:   "upgrade EVENT_ID",
		Short: "Upgrade to a higher tier, paying the price difference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			if o.quantity < 1 {
				return domain.ErrInvalidQuantity
			}

			client := a.client()
			av, err := client.Availability(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			target, err := findTier(av.Tiers, o.target)
			if err != nil {
				return err
			}

			flow := checkout.NewFlow(client, nil, logger.Logger)
			w, err := flow.StartUpgrade(cmd.Context(), eventID, target.ID)
			if err != nil {
				return err
			}
			if _, err := w.UpdateQuantity(target.ID, o.quantity); err != nil {
				return err
			}
			return a.runWizard(cmd, flow, w, o)
		},
	}
	cmd.Flags().StringVar(&o.target, "to", "", "target tier name or id")
	cmd.Flags().IntVar(&o.quantity, "quantity", 1, "number of upgraded tickets")
	_ = cmd.MarkFlagRequired("to")
	o.bindAttendeeFlags(cmd)
	return cmd
}

// runWizard walks a wizard with its selection made through attendees, promo
// and review, then pays.
func (a *app) runWizard(cmd *cobra.Command, flow *checkout.Flow, w *domain.Wizard, o *purchaseOpts) error {
	ctx := cmd.Context()

	if err := w.Next(); err != nil {
		return err
	}
	attendees, err := collectAttendees(o.attendees, len(w.Attendees()), cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	for i, at := range attendees {
		if err := w.SetAttendee(i, at); err != nil {
			return err
		}
	}
	if err := w.Next(); err != nil {
		return err
	}

	if o.promo != "" {
		if err := w.ApplyPromo(o.promo); err != nil {
			return fmt.Errorf("promo %q: %w", o.promo, err)
		}
	}
	if err := w.Next(); err != nil {
		return err
	}

	if err := flow.Refresh(ctx, w); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Msg("capacity refresh failed")
	}
	if o.dryRun {
		return a.printJSON(w.Summary())
	}
	if w.Summary().GoesToWaitlist {
		fmt.Fprintln(cmd.ErrOrStderr(), "event is full: this order will be placed on the waitlist")
	}

	if err := w.Next(); err != nil {
		return err
	}
	res, err := flow.Submit(ctx, w)
	if err != nil {
		if len(res.Outcomes) > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "some tiers completed before the failure:")
			_ = a.printJSON(res.Outcomes)
		}
		return err
	}
	return a.printJSON(struct {
		Summary domain.Summary  `json:"summary"`
		Result  checkout.Result `json:"result"`
	}{w.Summary(), res})
}

func findTier(tiers []domain.TicketTier, ref string) (domain.TicketTier, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		for _, t := range tiers {
			if t.ID == id {
				return t, nil
			}
		}
	}
	for _, t := range tiers {
		if strings.EqualFold(t.Name, ref) {
			return t, nil
		}
	}
	return domain.TicketTier{}, fmt.Errorf("%w: %q", domain.ErrTierNotFound, ref)
}

// parseTierArg reads NAME_OR_ID=QTY against the wizard's selectable tiers.
func parseTierArg(items []domain.TicketSelection, arg string) (uuid.UUID, int, error) {
	ref, qtyStr, ok := strings.Cut(arg, "=")
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("tier %q: want NAME_OR_ID=QTY", arg)
	}
	qty, err := strconv.Atoi(strings.TrimSpace(qtyStr))
	if err != nil || qty < 1 {
		return uuid.Nil, 0, fmt.Errorf("tier %q: %w", arg, domain.ErrInvalidQuantity)
	}
	tiers := make([]domain.TicketTier, 0, len(items))
	for _, it := range items {
		tiers = append(tiers, domain.TicketTier{ID: it.TierID, Name: it.TierName})
	}
	t, err := findTier(tiers, ref)
	if err != nil {
		return uuid.Nil, 0, err
	}
	return t.ID, qty, nil
}

func parseAttendee(s string) (domain.AttendeeInfo, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil || strings.TrimSpace(addr.Name) == "" {
		return domain.AttendeeInfo{}, fmt.Errorf("attendee %q: want \"Name <email>\"", s)
	}
	return domain.AttendeeInfo{Name: addr.Name, Email: addr.Address}, nil
}

// collectAttendees takes want attendees from the flags and prompts on in for
// the rest.
func collectAttendees(given []string, want int, in io.Reader, prompt io.Writer) ([]domain.AttendeeInfo, error) {
	if len(given) > want {
		return nil, fmt.Errorf("%d attendees given for %d tickets", len(given), want)
	}
	out := make([]domain.AttendeeInfo, 0, want)
	for _, s := range given {
		a, err := parseAttendee(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	sc := bufio.NewScanner(in)
	for len(out) < want {
		fmt.Fprintf(prompt, "attendee %d of %d (Name <email>): ", len(out)+1, want)
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: %d of %d given", domain.ErrAttendeesIncomplete, len(out), want)
		}
		a, err := parseAttendee(sc.Text())
		if err != nil {
			fmt.Fprintln(prompt, err)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
