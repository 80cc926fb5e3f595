package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"invitation-app/internal/delivery"
	"invitation-app/internal/events"
	"invitation-app/internal/models"
	"invitation-app/internal/textutil"
)

var errDeliveryFailed = errors.New("some invitations were not delivered")

func newEventsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage events, invitees and invitation delivery",
	}
	cmd.AddCommand(
		newEventsListCommand(opts),
		newEventsShowCommand(opts),
		newEventsCreateCommand(opts),
		newEventsUpdateCommand(opts),
		newEventsDeleteCommand(opts),
		newEventsInviteCommand(opts),
		newEventsSendCommand(opts),
		newEventsStatusCommand(opts),
		newEventsStatsCommand(opts),
	)
	return cmd
}

// eventSummary is one row of the event list.
type eventSummary struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Date  string       `json:"date"`
	Time  string       `json:"time"`
	Stats events.Stats `json:"stats"`
}

func newEventsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List events, most recently changed first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				all, err := a.events.List()
				if err != nil {
					return err
				}
				summaries := make([]eventSummary, 0, len(all))
				for _, ev := range all {
					summaries = append(summaries, eventSummary{
						ID: ev.ID, Title: ev.Title, Date: ev.Date, Time: ev.Time,
						Stats: events.ComputeStats(ev),
					})
				}
				return a.out.Success(summaries, func(w io.Writer) {
					if len(summaries) == 0 {
						fmt.Fprintln(w, "No events found.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tTITLE\tDATE\tINVITED\tACCEPTED\tDECLINED")
					for _, s := range summaries {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", s.ID, s.Title, s.Date, s.Stats.Total, s.Stats.Accepted, s.Stats.Declined)
					}
					tw.Flush()
				})
			})
		},
	}
}

// eventDetail is an event with the links each invitee was sent.
type eventDetail struct {
	Event models.Event      `json:"event"`
	Links map[string]string `json:"links"`
}

func newEventsShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show an event and its guest list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				ev, err := a.events.Get(args[0])
				if err != nil {
					return err
				}
				links := make(map[string]string, len(ev.Invitees))
				for _, inv := range ev.Invitees {
					links[inv.ContactID] = a.cfg.PublicURL("/rsvp/" + inv.Token)
				}
				return a.out.Success(eventDetail{Event: ev, Links: links}, func(w io.Writer) {
					printEvent(w, ev, links)
				})
			})
		},
	}
}

type eventFlags struct {
	title    string
	host     string
	date     string
	time     string
	location string
	message  string
	template string
	photo    string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "event title")
	cmd.Flags().StringVar(&f.host, "host", "", "host name")
	cmd.Flags().StringVar(&f.date, "date", "", "date as YYYY-MM-DD")
	cmd.Flags().StringVar(&f.time, "time", "", "time as HH:MM")
	cmd.Flags().StringVar(&f.location, "location", "", "location")
	cmd.Flags().StringVar(&f.message, "message", "", "personal message")
	cmd.Flags().StringVar(&f.template, "template", "", "invitation template name")
	cmd.Flags().StringVar(&f.photo, "photo", "", "image file to attach")
}

// recipientFlags select contacts to invite.
type recipientFlags struct {
	contactIDs []string
	tags       []string
	sendMethod string
}

func (f *recipientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.contactIDs, "contacts", nil, "contact ids to invite")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "invite every contact with this tag")
	cmd.Flags().StringVar(&f.sendMethod, "send-method", string(models.SendEmail), "email, sms or both")
}

func (f *recipientFlags) recipients(a *app) ([]events.Recipient, error) {
	method := models.SendMethod(f.sendMethod)
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", events.ErrInvalidSendMethod, f.sendMethod)
	}
	if len(f.contactIDs) == 0 && len(f.tags) == 0 {
		return nil, nil
	}

	all, err := a.contacts.List()
	if err != nil {
		return nil, err
	}
	wanted := make([]string, 0, len(f.tags))
	for _, tag := range f.tags {
		wanted = append(wanted, textutil.Fold(strings.TrimSpace(tag)))
	}

	var recipients []events.Recipient
	for _, c := range all {
		selected := slices.Contains(f.contactIDs, c.ID) || slices.ContainsFunc(c.Tags, func(t string) bool {
			return slices.Contains(wanted, textutil.Fold(t))
		})
		if selected {
			recipients = append(recipients, events.Recipient{Contact: c, SendMethod: method})
		}
	}
	return recipients, nil
}

func newEventsCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		f  eventFlags
		rf recipientFlags
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event and invite contacts",
		Example: `  invitations events create --title "Launch Party" --date 2025-06-01 --time 18:30 \
    --tag friends --send-method both --photo ./party.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				recipients, err := rf.recipients(a)
				if err != nil {
					return err
				}
				var photo *string
				if f.photo != "" {
					name, err := a.savePhoto(f.photo)
					if err != nil {
						return err
					}
					photo = &name
				}

				ev, err := a.events.Create(events.Fields{
					Title:    f.title,
					Host:     f.host,
					Date:     f.date,
					Time:     f.time,
					Location: f.location,
					Message:  f.message,
					Template: f.template,
				}, photo, recipients)
				if err != nil {
					return err
				}
				return a.out.Success(ev, func(w io.Writer) {
					fmt.Fprintf(w, "Created %q (%s) with %d invitees\n", ev.Title, ev.ID, len(ev.Invitees))
				})
			})
		},
	}
	f.register(cmd)
	rf.register(cmd)
	return cmd
}

func newEventsUpdateCommand(opts *RootOptions) *cobra.Command {
	var (
		f          eventFlags
		clearPhoto bool
	)
	cmd := &cobra.Command{
		Use:   "update <event-id>",
		Short: "Change event details; flags left out keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				changed := func(name string, value string) *string {
					if !cmd.Flags().Changed(name) {
						return nil
					}
					return &value
				}
				patch := events.Patch{
					Title:      changed("title", f.title),
					Host:       changed("host", f.host),
					Date:       changed("date", f.date),
					Time:       changed("time", f.time),
					Location:   changed("location", f.location),
					Message:    changed("message", f.message),
					Template:   changed("template", f.template),
					ClearPhoto: clearPhoto,
				}
				if f.photo != "" && !clearPhoto {
					name, err := a.savePhoto(f.photo)
					if err != nil {
						return err
					}
					patch.Photo = &name
				}

				ev, err := a.events.Update(args[0], patch)
				if err != nil {
					return err
				}
				return a.out.Success(ev, func(w io.Writer) {
					fmt.Fprintf(w, "Updated %q\n", ev.Title)
				})
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&clearPhoto, "clear-photo", false, "remove the event photo")
	return cmd
}

func newEventsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				removed, err := a.events.Delete(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return events.ErrNotFound
				}
				return a.out.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted event %s\n", args[0])
				})
			})
		},
	}
}

func newEventsInviteCommand(opts *RootOptions) *cobra.Command {
	var rf recipientFlags
	cmd := &cobra.Command{
		Use:   "invite <event-id>",
		Short: "Add contacts to an event; contacts already invited are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				recipients, err := rf.recipients(a)
				if err != nil {
					return err
				}
				ev, added, err := a.events.AddInvitees(args[0], recipients)
				if err != nil {
					return err
				}
				return a.out.Success(map[string]int{"added": added, "invitees": len(ev.Invitees)}, func(w io.Writer) {
					fmt.Fprintf(w, "Added %d invitees (%d total)\n", added, len(ev.Invitees))
				})
			})
		},
	}
	rf.register(cmd)
	return cmd
}

// failureView is a delivery failure as printed by the CLI.
type failureView struct {
	ContactID string `json:"contact_id"`
	Name      string `json:"name"`
	Channel   string `json:"channel"`
	Error     string `json:"error"`
}

// sendError reports a bulk send in which some deliveries failed.
type sendError struct {
	sent     int
	failures []failureView
}

func (e *sendError) Error() string {
	return fmt.Sprintf("%d invitations failed, %d sent", len(e.failures), e.sent)
}

func (e *sendError) Unwrap() error {
	return errDeliveryFailed
}

func failureDetails(err error) any {
	var se *sendError
	if errors.As(err, &se) {
		return map[string]any{"sent": se.sent, "failures": se.failures}
	}
	return nil
}

func newEventsSendCommand(opts *RootOptions) *cobra.Command {
	var (
		contactIDs []string
		o          delivery.Options
	)
	cmd := &cobra.Command{
		Use:   "send <event-id>",
		Short: "Send invitations",
		Long: `Send an event's invitations. By default every invitee gets each channel of
its send method that has not been used yet. Exits with status 1 when any
delivery failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				var texter delivery.Texter
				if !o.EmailOnly && !o.ForceEmail {
					svc, err := a.whatsApp(ctx, cmd.ErrOrStderr())
					if err != nil {
						return err
					}
					if svc != nil {
						texter = svc
					}
				}

				o.ContactIDs = contactIDs
				result, err := a.dispatcher(texter).Send(ctx, args[0], o)
				if err != nil {
					return err
				}
				return reportSend(a.out, result)
			})
		},
	}
	cmd.Flags().StringSliceVar(&contactIDs, "contacts", nil, "only send to these contact ids")
	cmd.Flags().BoolVar(&o.ForceEmail, "force-email", false, "resend email to everyone selected")
	cmd.Flags().BoolVar(&o.ForceText, "force-sms", false, "resend text messages to everyone selected")
	cmd.Flags().BoolVar(&o.EmailOnly, "email-only", false, "skip text messages")
	cmd.Flags().BoolVar(&o.TextOnly, "sms-only", false, "skip email")
	cmd.MarkFlagsMutuallyExclusive("email-only", "sms-only")
	return cmd
}

func reportSend(out *OutputFormatter, result delivery.Result) error {
	if len(result.Failures) == 0 {
		return out.Success(map[string]int{"sent": result.Sent}, func(w io.Writer) {
			fmt.Fprintf(w, "Sent %d invitations\n", result.Sent)
		})
	}

	se := &sendError{sent: result.Sent}
	for _, f := range result.Failures {
		se.failures = append(se.failures, failureView{
			ContactID: f.ContactID,
			Name:      f.Name,
			Channel:   string(f.Channel),
			Error:     f.Err.Error(),
		})
	}
	if out.Format != "json" {
		fmt.Fprintf(out.Writer, "Sent %d invitations\n", result.Sent)
		for _, f := range result.Failures {
			fmt.Fprintf(out.Writer, "  failed: %s\n", f.Error())
		}
	}
	return se
}

func newEventsStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <event-id> <contact-id> <pending|accepted|declined|maybe>",
		Short: "Set an invitee's RSVP status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				status := models.Status(strings.ToLower(args[2]))
				updated, err := a.events.SetStatus(args[0], args[1], status)
				if err != nil {
					return err
				}
				if !updated {
					return fmt.Errorf("invitee %s of event %s: %w", args[1], args[0], events.ErrNotFound)
				}
				return a.out.Success(map[string]string{"contact_id": args[1], "status": string(status)}, func(w io.Writer) {
					fmt.Fprintf(w, "Status set to %s\n", status)
				})
			})
		},
	}
}

func newEventsStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <event-id>",
		Short: "Count invitees by RSVP status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				ev, err := a.events.Get(args[0])
				if err != nil {
					return err
				}
				stats := events.ComputeStats(ev)
				return a.out.Success(stats, func(w io.Writer) { printStats(w, stats) })
			})
		},
	}
}

func printEvent(w io.Writer, ev models.Event, links map[string]string) {
	fmt.Fprintf(w, "%s\n", ev.Title)
	fmt.Fprintf(w, "  id:       %s\n", ev.ID)
	if ev.Host != "" {
		fmt.Fprintf(w, "  host:     %s\n", ev.Host)
	}
	fmt.Fprintf(w, "  when:     %s %s\n", delivery.FormatDate(ev.Date), delivery.FormatTime(ev.Time))
	if ev.Location != "" {
		fmt.Fprintf(w, "  where:    %s\n", ev.Location)
	}
	fmt.Fprintf(w, "  template: %s\n", ev.Template)
	if ev.Photo != nil {
		fmt.Fprintf(w, "  photo:    %s\n", *ev.Photo)
	}
	fmt.Fprintln(w)

	if len(ev.Invitees) == 0 {
		fmt.Fprintln(w, "No invitees.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTACT\tNAME\tMETHOD\tSTATUS\tEMAILED\tTEXTED\tLINK")
	for _, inv := range ev.Invitees {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ContactID, inv.Name, inv.SendMethod, inv.Status,
			orDash(inv.EmailSentAt), orDash(inv.SMSSentAt), links[inv.ContactID])
	}
	tw.Flush()
	fmt.Fprintln(w)
	printStats(w, events.ComputeStats(ev))
}

func printStats(w io.Writer, s events.Stats) {
	fmt.Fprintf(w, "%d invited: %d accepted, %d declined, %d maybe, %d pending\n",
		s.Total, s.Accepted, s.Declined, s.Maybe, s.Pending)
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

