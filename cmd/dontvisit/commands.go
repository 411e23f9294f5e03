package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/haukened/dontvisit/internal/blocker/common/clock"
	"github.com/haukened/dontvisit/internal/blocker/domain"
	"github.com/haukened/dontvisit/internal/blocker/repos/listfile"
	"github.com/haukened/dontvisit/internal/blocker/repos/store/bolt"
	"github.com/haukened/dontvisit/internal/blocker/services/blocker"
	"github.com/haukened/dontvisit/internal/blocker/services/matcher"
)

// cli carries the flags shared by every subcommand.
type cli struct {
	dbPath string
	clock  clock.Clock
}

func newRootCommand(defaultDB string) *cobra.Command {
	c := &cli{clock: &clock.RealClock{}}

	root := &cobra.Command{
		Use:           "dontvisit",
		Short:         "Manage the dontvisit block list",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.dbPath, "db", defaultDB, "Path to the dontvisitd database")

	root.AddCommand(
		c.addCommand(),
		c.removeCommand(),
		c.listCommand(),
		c.clearCommand(),
		c.toggleCommand("enable", true),
		c.toggleCommand("disable", false),
		c.methodCommand(),
		c.statsCommand(),
		c.checkCommand(),
		c.importCommand(),
		c.exportCommand(),
	)
	return root
}

// withService opens the store for the duration of fn.
func (c *cli) withService(fn func(svc *blocker.Service) error) (err error) {
	st, err := bolt.New(c.dbPath, c.clock)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.dbPath, err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	svc, err := blocker.New(blocker.Options{
		Store:   st,
		Matcher: matcher.New(matcher.Options{}),
		Clock:   c.clock,
	})
	if err != nil {
		return err
	}
	if err := svc.Init(); err != nil {
		return err
	}
	return fn(svc)
}

func (c *cli) addCommand() *cobra.Command {
	var fromURL bool
	cmd := &cobra.Command{
		Use:   "add <site>...",
		Short: "Block one or more sites",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *blocker.Service) error {
				var errs *multierror.Error
				for _, site := range args {
					var err error
					if fromURL {
						_, err = svc.AddEntryFromURL(site)
					} else {
						_, err = svc.AddEntry(site)
					}
					if err != nil {
						errs = multierror.Append(errs, fmt.Errorf("%s: %s", site, blocker.ErrorText(err)))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "blocked %s\n", site)
				}
				return errs.ErrorOrNil()
			})
		},
	}
	cmd.Flags().BoolVar(&fromURL, "url", false, "Treat arguments as URLs and block their host")
	return cmd
}

func (c *cli) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <site>...",
		Aliases: []string{"rm"},
		Short:   "Unblock one or more sites",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *blocker.Service) error {
				var errs *multierror.Error
				for _, site := range args {
					if _, err := svc.RemoveEntry(site); err != nil {
						errs = multierror.Append(errs, fmt.Errorf("%s: %s", site, blocker.ErrorText(err)))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", site)
				}
				return errs.ErrorOrNil()
			})
		},
	}
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Print the block list and current state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *blocker.Service) error {
				snap, err := svc.Snapshot()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				state := "enabled"
				if !snap.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "# blocking %s, method %s\n", state, snap.Method)
				for _, site := range snap.BlockList.Strings() {
					fmt.Fprintln(out, site)
				}
				return nil
			})
		},
	}
}

func (c *cli) clearCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every blocked site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the block list without --yes")
			}
			return c.withService(func(svc *blocker.Service) error {
				if err := svc.ClearEntries(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "block list cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing the list")
	return cmd
}

func (c *cli) toggleCommand(name string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: strings.ToUpper(name[:1]) + name[1:] + " blocking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *blocker.Service) error {
				got, err := svc.SetEnabled(&enabled)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "blocking enabled: %t\n", got)
				return nil
			})
		},
	}
}

func (c *cli) methodCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "method [close|redirect|warning]",
		Short:     "Show or set the blocking method",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(domain.MethodClose), string(domain.MethodRedirect), string(domain.MethodWarning)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *blocker.Service) error {
				if len(args) == 0 {
					snap, err := svc.Snapshot()
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), snap.Method)
					return nil
				}
				m, err := svc.SetMethod(args[0])
				if err != nil {
					return fmt.Errorf("invalid blocking method %q: use close, redirect or warning", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "blocking method: %s\n", m)
				return nil
			})
		},
	}
}

func (c *cli) statsCommand() *cobra.Command {
	var byDomain bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print blocking statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *blocker.Service) error {
				stats, err := svc.Statistics()
				if err != nil {
					return err
				}
				if byDomain {
					stats = blocker.GroupByDomain(stats)
				}
				writeStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&byDomain, "by-domain", false, "group hosts by registrable domain")
	return cmd
}

// writeStats prints totals and per-host counts, busiest host first.
func writeStats(out io.Writer, stats domain.Statistics) {
	hosts := make([]string, 0, len(stats.SitesBlocked))
	for h := range stats.SitesBlocked {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool {
		a, b := stats.SitesBlocked[hosts[i]], stats.SitesBlocked[hosts[j]]
		if a != b {
			return a > b
		}
		return hosts[i] < hosts[j]
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "installed\t%s\n", stats.InstallDate.UTC().Format(time.DateOnly))
	fmt.Fprintf(tw, "total blocked\t%d\n", stats.TotalBlocked)
	for _, h := range hosts {
		fmt.Fprintf(tw, "  %s\t%d\n", h, stats.SitesBlocked[h])
	}
	_ = tw.Flush()
}

func (c *cli) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>...",
		Short: "Report whether URLs would be blocked",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *blocker.Service) error {
				snap, err := svc.Snapshot()
				if err != nil {
					return err
				}
				m := matcher.New(matcher.Options{})
				out := cmd.OutOrStdout()
				for _, u := range args {
					d := m.Decide(u, snap.BlockList, snap.Settings)
					if !d.Blocked {
						fmt.Fprintf(out, "allowed  %s\n", u)
						continue
					}
					fmt.Fprintf(out, "blocked  %s (%s rule, entry %s)\n", u, d.Rule, d.Entry)
				}
				if !snap.Enabled {
					fmt.Fprintln(out, "note: blocking is currently disabled")
				}
				return nil
			})
		},
	}
}

func (c *cli) importCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge sites from a JSON, YAML, TOML or plain list file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := listfile.NewReader(nil, nil)
			var (
				res listfile.Result
				err error
			)
			if format == "" {
				res, err = reader.Load(args[0])
			} else {
				f, perr := listfile.ParseFormat(format)
				if perr != nil {
					return perr
				}
				data, rerr := os.ReadFile(args[0])
				if rerr != nil {
					return rerr
				}
				res, err = reader.Parse(data, f)
			}
			if err != nil {
				return err
			}

			return c.withService(func(svc *blocker.Service) error {
				imported, err := svc.ImportEntries(res.Sites)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "added %d, skipped %d\n", len(imported.Added), imported.Skipped)
				for _, bad := range []error{res.Invalid, imported.Rejected} {
					if bad != nil {
						fmt.Fprintf(out, "invalid entries:\n%v\n", bad)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Input format (json, yaml, toml, plain); detected from the file when empty")
	return cmd
}

func (c *cli) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the block list as a JSON export document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *blocker.Service) error {
				list, err := svc.Entries()
				if err != nil {
					return err
				}
				doc, err := listfile.Export(list.Strings(), c.clock.Now())
				if err != nil {
					return err
				}
				if len(args) == 0 {
					_, err = cmd.OutOrStdout().Write(append(doc, '\n'))
					return err
				}
				return os.WriteFile(args[0], doc, 0o644)
			})
		},
	}
}
