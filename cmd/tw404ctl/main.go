// Package main is the operator CLI for the TW404 remote host.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheGojiOG/tw404-manager/internal/access"
	"github.com/TheGojiOG/tw404-manager/internal/accounts"
	"github.com/TheGojiOG/tw404-manager/internal/app"
	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/server"
)

var (
	// Version info (set via ldflags)
	Version = "0.1.0"
	Commit  = "dev"
)

// actor recorded in the activity log for CLI operations
const cliActor = "cli"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openApp is replaced in tests
var openApp = func() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// stdout carries command output
	cfg.Logging.Stderr = true
	if !verbose {
		cfg.Logging.Level = "warn"
	}
	if _, err := logging.Init(cfg.Logging); err != nil {
		return nil, err
	}
	return app.New(cfg, app.Options{State: true})
}

var rootCmd = &cobra.Command{
	Use:   "tw404ctl",
	Short: "Operate the TW404 game processes and accounts",
	Long: `tw404ctl drives the remote TW404 host directly over SSH.
It reads the same configuration as the service (CONFIG_PATH or
./configs/config.yaml plus environment) and records what it does in the
activity log.`,
	Version:       Version + " (" + Commit + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which processes are running",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the database and every worker",
	Args:  cobra.NoArgs,
	RunE:  runLifecycle(server.OperationStart),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop every managed process",
	Args:  cobra.NoArgs,
	RunE:  runLifecycle(server.OperationStop),
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stop then start every managed process",
	Args:  cobra.NoArgs,
	RunE:  runLifecycle(server.OperationRestart),
}

var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "Print the tail of a process log",
	Long:  `Prints the last lines of the log of one managed process. Use --output to download the whole file instead.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

var createAccountCmd = &cobra.Command{
	Use:   "create-account <name>",
	Short: "Create a player account",
	Long: `Creates a player account on the remote host. The password is read from
--password, or from the first line of standard input with --password-stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateAccount,
}

var setGMCmd = &cobra.Command{
	Use:   "set-gm <name> <ip>",
	Short: "Grant GM access to an account from one address",
	Args:  cobra.ExactArgs(2),
	RunE:  runSetGM,
}

var banCmd = &cobra.Command{
	Use:   "ban <ip>",
	Short: "Add an address to the ban list",
	Args:  cobra.ExactArgs(1),
	RunE:  runBan,
}

var bansCmd = &cobra.Command{
	Use:   "bans",
	Short: "List banned addresses",
	Args:  cobra.NoArgs,
	RunE:  runBans,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the remote host answers",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a configuration file with the default settings",
	Long:  `Writes the default configuration to path, or to the resolved configuration path when none is given. Existing files are kept unless --force is set.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInitConfig,
}

var (
	verbose        bool
	forceOverwrite bool
	jsonOutput     bool
	logLines       int
	logOutput      string
	password       string
	passwordStdin  bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log remote operations to stderr")
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 0, "Number of lines (0 uses the configured default)")
	logsCmd.Flags().StringVarP(&logOutput, "output", "o", "", "Download the whole log to this file")
	createAccountCmd.Flags().StringVar(&password, "password", "", "Account password")
	createAccountCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from standard input")
	initConfigCmd.Flags().BoolVar(&forceOverwrite, "force", false, "Overwrite an existing file")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(createAccountCmd)
	rootCmd.AddCommand(setGMCmd)
	rootCmd.AddCommand(banCmd)
	rootCmd.AddCommand(bansCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(initConfigCmd)
}

// withApp opens the application for one command and cancels on SIGINT
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		status := a.Supervisor.Probe(ctx)
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, status)
		}
		for _, name := range a.Roster.Names() {
			state := "stopped"
			if status.Processes[name] {
				state = "running"
			}
			fmt.Fprintf(out, "%-12s %s\n", name, state)
		}
		return nil
	})
}

func runLifecycle(operation string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var report server.Report
			switch operation {
			case server.OperationStart:
				report = a.Supervisor.Start(ctx)
			case server.OperationStop:
				report = a.Supervisor.Stop(ctx)
			default:
				report = a.Supervisor.Restart(ctx)
			}
			if a.Activity != nil {
				a.Activity.LogLifecycle(operation, cliActor, report.Succeeded, report.Failures())
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, step := range report.Steps {
					mark := "ok"
					if !step.Succeeded {
						mark = "FAILED"
					}
					label := step.Step
					if step.Process != "" {
						label += " " + step.Process
					}
					fmt.Fprintf(out, "%-24s %s", label, mark)
					if !step.Succeeded && step.Detail != "" {
						fmt.Fprintf(out, ": %s", step.Detail)
					}
					fmt.Fprintln(out)
				}
			}

			if !report.Succeeded {
				failed := make([]string, 0)
				for name := range report.Failures() {
					failed = append(failed, name)
				}
				sort.Strings(failed)
				return fmt.Errorf("%s failed for: %s", operation, strings.Join(failed, ", "))
			}
			return nil
		})
	}
}

func runLogs(cmd *cobra.Command, args []string) error {
	name := args[0]
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if logOutput == "" {
			text, err := a.Logs.Tail(ctx, name, logLines)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		}

		f, err := os.Create(logOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", logOutput, err)
		}
		n, err := a.Logs.Download(ctx, name, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(logOutput)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", n, logOutput)
		return nil
	})
}

func readPassword(cmd *cobra.Command) (string, error) {
	if !passwordStdin {
		return password, nil
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runCreateAccount(cmd *cobra.Command, args []string) error {
	secret, err := readPassword(cmd)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		req := accounts.Request{AccountName: args[0], Password: secret, Origin: cliActor}
		outcome := a.Provisioner.Create(ctx, req)
		if a.Activity != nil {
			a.Activity.LogAccountCreate(strings.TrimSpace(args[0]), cliActor, outcome.AttemptID, outcome.Succeeded, string(outcome.Kind), outcome.Message)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, outcome); err != nil {
				return err
			}
		} else if outcome.Succeeded {
			fmt.Fprintln(out, outcome.Message)
			if outcome.Ambiguous {
				fmt.Fprintln(out, "warning: the creation tool reported an error but the profile exists")
			}
		}

		if !outcome.Succeeded {
			return fmt.Errorf("%s (%s at %s, attempt %s)", outcome.Message, outcome.Kind, outcome.FailedStep(), outcome.AttemptID)
		}
		return nil
	})
}

func printAccessResult(cmd *cobra.Command, res access.Result) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, res); err != nil {
			return err
		}
	} else if res.Succeeded {
		fmt.Fprintln(out, res.Message)
	}
	if !res.Succeeded {
		return fmt.Errorf("%s: %s", res.Kind, res.Message)
	}
	return nil
}

func runSetGM(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res := a.Access.AssignGM(ctx, args[0], args[1])
		if a.Activity != nil {
			a.Activity.LogGMAssign(strings.TrimSpace(args[0]), strings.TrimSpace(args[1]), cliActor, res.Succeeded, res.Message)
		}
		return printAccessResult(cmd, res)
	})
}

func runBan(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res := a.Access.BanIP(ctx, args[0])
		if a.Activity != nil {
			a.Activity.LogBan(strings.TrimSpace(args[0]), cliActor, res.Succeeded, res.Message)
		}
		return printAccessResult(cmd, res)
	})
}

func runBans(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		ips, err := a.Access.ListBans(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string][]string{"list": ips})
		}
		for _, ip := range ips {
			fmt.Fprintln(out, ip)
		}
		return nil
	})
}

func runHealth(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		connected := a.Health.Check(ctx)
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, map[string]bool{"solaris_connected": connected}); err != nil {
				return err
			}
		} else if connected {
			fmt.Fprintf(out, "%s reachable\n", a.Config.Remote.Host)
		}
		if !connected {
			return fmt.Errorf("%s unreachable", a.Config.Remote.Host)
		}
		return nil
	})
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	target := config.GetConfigPath()
	if len(args) == 1 {
		target = args[0]
	}
	if _, err := os.Stat(target); err == nil && !forceOverwrite {
		return fmt.Errorf("%s already exists (use --force to overwrite)", target)
	}
	if err := config.Save(config.Default(), target); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", target)
	return nil
}
