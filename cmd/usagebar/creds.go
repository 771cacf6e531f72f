package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all"
	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/usagebar/internal/config"
	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/parsers"
	"github.com/janekbaraniewski/usagebar/internal/providers/amp"
	"github.com/janekbaraniewski/usagebar/internal/tui"
)

func newCredsCommand(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "creds",
		Aliases: []string{"credentials"},
		Short:   "Manage provider credentials",
		Long:    "Store, remove, check and validate the API key (zai) or session cookie (amp). Claude reads the Claude Code OAuth file.",
	}

	cmd.AddCommand(newCredsSetCommand(cfg))
	cmd.AddCommand(newCredsDeleteCommand(cfg))
	cmd.AddCommand(newCredsCheckCommand(cfg))
	cmd.AddCommand(newCredsValidateCommand(cfg))
	cmd.AddCommand(newCredsImportCookieCommand(cfg))
	return cmd
}

func newCredsSetCommand(cfg config.Config) *cobra.Command {
	var skipValidate bool

	cmd := &cobra.Command{
		Use:   "set <provider> [value]",
		Short: "Store a credential, reading it from stdin when no value is given",
		Long:  "Values of the form {env:NAME} or $env:NAME are stored as references and resolved on each use.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			value := ""
			if len(args) == 2 {
				value = args[1]
			} else {
				value, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), args[0])
				if err != nil {
					return err
				}
			}
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("empty credential")
			}

			if !skipValidate {
				if err := validateWithTimeout(cmd.Context(), a, args[0], value); err != nil {
					return fmt.Errorf("not saved: %w", err)
				}
			}
			if err := a.service.SaveCredential(args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s credential saved (%s)\n", args[0], parsers.RedactSecret(strings.TrimSpace(value)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipValidate, "no-validate", false, "store without checking the credential upstream")
	return cmd
}

func newCredsDeleteCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.DeleteCredential(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s credential deleted\n", args[0])
			return nil
		},
	}
}

func newCredsCheckCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check [provider...]",
		Short: "Report which providers have a credential configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.providerArgs(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				if a.service.HasCredential(id) {
					fmt.Fprintf(out, "%-8s configured\n", id)
					continue
				}
				fmt.Fprintf(out, "%-8s missing\n", id)
				for _, step := range a.quickstart(id) {
					fmt.Fprintf(out, "         %s\n", step)
				}
			}
			return nil
		},
	}
}

func newCredsValidateCommand(cfg config.Config) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "validate [provider...]",
		Short: "Check credentials against the upstream without storing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.providerArgs(args)
			if err != nil {
				return err
			}
			if value != "" && len(ids) != 1 {
				return fmt.Errorf("--value needs exactly one provider")
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, id := range ids {
				if err := validateWithTimeout(cmd.Context(), a, id, value); err != nil {
					failed++
					fmt.Fprintf(out, "%-8s %s %v\n", id, tui.StatusBadge(core.StatusForError(err)), err)
					if hint := tui.Hint(core.KindOf(err)); hint != "" {
						fmt.Fprintf(out, "         %s\n", hint)
					}
					continue
				}
				fmt.Fprintf(out, "%-8s %s\n", id, tui.StatusBadge(core.StatusOK))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d credentials invalid", failed, len(ids))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "candidate credential to test instead of the stored one")
	return cmd
}

func newCredsImportCookieCommand(cfg config.Config) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import-cookie amp",
		Short: "Copy the Amp session cookie from a local browser profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != amp.ProviderID {
				return fmt.Errorf("cookie import is only supported for %s", amp.ProviderID)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cookie, source, err := findBrowserCookie(ctx, amp.CookieDomain, amp.CookieName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "found %s cookie in %s\n", amp.CookieName, source)
			if dryRun {
				return nil
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := validateWithTimeout(ctx, a, amp.ProviderID, cookie); err != nil {
				return fmt.Errorf("browser cookie rejected: %w", err)
			}
			if err := a.service.SaveCredential(amp.ProviderID, cookie); err != nil {
				return err
			}
			fmt.Fprintln(out, "amp session saved")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report where the cookie was found")
	return cmd
}

// findBrowserCookie returns the newest unexpired cookie across all browser
// profiles kooky can read.
func findBrowserCookie(ctx context.Context, domain, name string) (value, source string, err error) {
	cookies, readErr := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(domain), kooky.Name(name))
	if len(cookies) == 0 {
		if readErr != nil {
			return "", "", fmt.Errorf("reading browser cookies: %w", readErr)
		}
		return "", "", errors.New("no " + name + " cookie for " + domain + " found; log in with a browser first")
	}

	best := cookies[0]
	for _, c := range cookies[1:] {
		if c.Creation.After(best.Creation) {
			best = c
		}
	}
	source = "browser store"
	if best.Browser != nil {
		source = best.Browser.Browser() + " (" + best.Browser.Profile() + ")"
	}
	return best.Value, source, nil
}

func validateWithTimeout(ctx context.Context, a *app, id, value string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout()+5*time.Second)
	defer cancel()
	return a.service.ValidateCredential(ctx, id, value)
}

func readSecret(in io.Reader, prompt io.Writer, provider string) (string, error) {
	if f, ok := in.(*os.File); ok && f == os.Stdin {
		fmt.Fprintf(prompt, "Paste %s credential and press Enter: ", provider)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	return strings.TrimSpace(line), nil
}
