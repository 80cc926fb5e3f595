package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"invitation-app/internal/contacts"
	"invitation-app/internal/models"
	"invitation-app/internal/textutil"
)

func newContactsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the contact list",
	}
	cmd.AddCommand(
		newContactsListCommand(opts),
		newContactsAddCommand(opts),
		newContactsUpdateCommand(opts),
		newContactsDeleteCommand(opts),
		newContactsSearchCommand(opts),
		newContactsImportCommand(opts),
		newContactsTagsCommand(opts),
	)
	return cmd
}

func newContactsListCommand(opts *RootOptions) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				list, err := a.contacts.List()
				if err != nil {
					return err
				}
				if tag != "" {
					list = slices.DeleteFunc(list, func(c models.Contact) bool {
						return !slices.ContainsFunc(c.Tags, func(t string) bool {
							return textutil.Fold(t) == textutil.Fold(tag)
						})
					})
				}
				return a.out.Success(list, func(w io.Writer) { printContacts(w, list) })
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only contacts carrying this tag")
	return cmd
}

type contactFlags struct {
	name  string
	email string
	phone string
	tags  string
}

func (f *contactFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "contact name")
	cmd.Flags().StringVar(&f.email, "email", "", "email address")
	cmd.Flags().StringVar(&f.phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&f.tags, "tags", "", "comma separated tags")
}

func newContactsAddCommand(opts *RootOptions) *cobra.Command {
	var f contactFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				contact, err := a.contacts.Add(contacts.Input{
					Name:  f.name,
					Email: f.email,
					Phone: f.phone,
					Tags:  textutil.SplitTags(f.tags),
				})
				if err != nil {
					return err
				}
				return a.out.Success(contact, func(w io.Writer) {
					fmt.Fprintf(w, "Added %s <%s> (%s)\n", contact.Name, contact.Email, contact.ID)
				})
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newContactsUpdateCommand(opts *RootOptions) *cobra.Command {
	var f contactFlags
	cmd := &cobra.Command{
		Use:   "update <contact-id>",
		Short: "Change a contact; flags left out keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				current, err := a.contacts.Get(args[0])
				if err != nil {
					return err
				}
				in := contacts.Input{Name: current.Name, Email: current.Email, Phone: current.Phone, Tags: current.Tags}
				if cmd.Flags().Changed("name") {
					in.Name = f.name
				}
				if cmd.Flags().Changed("email") {
					in.Email = f.email
				}
				if cmd.Flags().Changed("phone") {
					in.Phone = f.phone
				}
				if cmd.Flags().Changed("tags") {
					in.Tags = textutil.SplitTags(f.tags)
				}

				contact, err := a.contacts.Update(args[0], in)
				if err != nil {
					return err
				}
				return a.out.Success(contact, func(w io.Writer) {
					fmt.Fprintf(w, "Updated %s <%s>\n", contact.Name, contact.Email)
				})
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newContactsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <contact-id>",
		Short: "Delete a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				removed, err := a.contacts.Delete(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return contacts.ErrNotFound
				}
				return a.out.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted contact %s\n", args[0])
				})
			})
		},
	}
}

func newContactsSearchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search contacts by name, email or tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				query := strings.TrimSpace(args[0])
				var (
					list []models.Contact
					err  error
				)
				if query == "" {
					list, err = a.contacts.List()
				} else {
					list, err = a.contacts.Search(query)
				}
				if err != nil {
					return err
				}
				return a.out.Success(list, func(w io.Writer) { printContacts(w, list) })
			})
		},
	}
}

func newContactsImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import contacts from a CSV file with name,email,phone,tags columns",
		Long: `Import contacts from a CSV file. Use "-" to read standard input.
Rows without a name or email, or whose email is already known, are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				var src io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					file, err := os.Open(args[0])
					if err != nil {
						return fmt.Errorf("open csv: %w", err)
					}
					defer file.Close()
					src = file
				}

				result, err := a.contacts.ImportCSV(src)
				if err != nil {
					return err
				}
				return a.out.Success(result, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d contacts, skipped %d\n", result.Added, result.Skipped)
				})
			})
		},
	}
}

func newContactsTagsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List every tag in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, cmd, func(a *app) error {
				tags, err := a.contacts.Tags()
				if err != nil {
					return err
				}
				return a.out.Success(tags, func(w io.Writer) {
					for _, tag := range tags {
						fmt.Fprintln(w, tag)
					}
				})
			})
		},
	}
}

func printContacts(w io.Writer, list []models.Contact) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No contacts found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tTAGS")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Email, c.Phone, strings.Join(c.Tags, ","))
	}
	tw.Flush()
}
