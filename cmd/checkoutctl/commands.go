package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/security"
)

func newAvailabilityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "availability EVENT_ID",
		Short: "Show tiers, remaining capacity and whether checkout is open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			av, err := a.client().Availability(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			return a.printJSON(av)
		},
	}
}

func newTicketsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tickets",
		Short: "List the caller's tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tickets, err := a.client().MyTickets(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(tickets)
		},
	}
}

func newAttendeesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attendees EVENT_ID",
		Short: "List confirmed attendees (organizer only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			items, err := a.client().Attendees(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			return a.printJSON(items)
		},
	}
}

func newWaitlistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waitlist",
		Short: "Review an event's waitlist (organizer only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list EVENT_ID",
		Short: "List waitlist entries, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID("event", args[0])
			if err != nil {
				return err
			}
			items, err := a.client().Waitlist(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			return a.printJSON(items)
		},
	})

	var notes string
	decide := &cobra.Command{
		Use:   "decide ENTRY_ID approved|rejected",
		Short: "Approve or reject a pending entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := parseID("waitlist entry", args[0])
			if err != nil {
				return err
			}
			var n *string
			if strings.TrimSpace(notes) != "" {
				n = &notes
			}
			entry, err := a.client().DecideWaitlist(cmd.Context(), entryID, strings.ToLower(strings.TrimSpace(args[1])), n)
			if err != nil {
				return err
			}
			return a.printJSON(entry)
		},
	}
	decide.Flags().StringVar(&notes, "notes", "", "note stored with the decision")
	cmd.AddCommand(decide)

	return cmd
}

func newNoShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "no-show TICKET_ID",
		Short: "Mark a confirmed ticket as no-show and promote the next waitlist entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, err := parseID("ticket", args[0])
			if err != nil {
				return err
			}
			res, err := a.client().MarkNoShow(cmd.Context(), ticketID)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore TICKET_ID",
		Short: "Undo a no-show when a seat is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, err := parseID("ticket", args[0])
			if err != nil {
				return err
			}
			t, err := a.client().RestoreTicket(cmd.Context(), ticketID)
			if err != nil {
				return err
			}
			return a.printJSON(t)
		},
	}
}

// newTokenCmd mints a local HS256 token for development against a server
// that shares the secret.
func newTokenCmd(a *app) *cobra.Command {
	var (
		secret, issuer, userID, role, name, email string
		ttl                                       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			if userID == "" {
				userID = uuid.NewString()
			}
			tok, err := security.NewHS256Signer(secret, issuer).Sign(security.TokenClaims{
				UserID: userID,
				Role:   role,
				Name:   name,
				Email:  email,
			}, ttl, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, tok)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret (JWT_SECRET on the server)")
	cmd.Flags().StringVar(&issuer, "issuer", "cityevents", "token issuer")
	cmd.Flags().StringVar(&userID, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&role, "role", "user", "user, organizer, moderator or admin")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
