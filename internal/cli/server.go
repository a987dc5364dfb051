package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SectorAlpha/AlphaGSM"
	"github.com/SectorAlpha/AlphaGSM/datastore"
	"github.com/SectorAlpha/AlphaGSM/gamemodule"
	"github.com/SectorAlpha/AlphaGSM/server"
)

// serverCmd builds the command tree for one server: the builtin commands
// plus those of the server's module. name may be "*" for help only.
func (a *app) serverCmd(name string) *cobra.Command {
	env := a.newEnv(a.settings, a.logger)
	env.In, env.Out = a.in, a.out

	var (
		srv     *server.Server
		loadErr error
	)
	if name == anyServer {
		loadErr = errors.New("a server name is needed, '*' only supports help")
	} else {
		srv, loadErr = server.Load(name, env)
		if errors.Is(loadErr, datastore.ErrNotFound) {
			loadErr = fmt.Errorf("server %s does not exist, create it with 'alphagsm %s create MODULE'", name, name)
		}
	}
	need := func() (*server.Server, error) {
		return srv, loadErr
	}

	root := &cobra.Command{
		Use:           name + " COMMAND",
		Short:         "Commands for server " + name,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.AddCommand(
		createCmd(name, env),
		setupCmd(need),
		startCmd(need),
		stopCmd(need),
		statusCmd(need),
		messageCmd(need),
		connectCmd(need),
		dumpCmd(need),
		setCmd(need),
	)
	if srv != nil {
		for _, spec := range srv.Commands() {
			root.AddCommand(moduleCmd(srv, spec))
		}
	}
	return root
}

type loader func() (*server.Server, error)

// withServer wraps a builtin command body with server loading and error
// context
func withServer(op alphagsm.Command, load loader, run func(*cobra.Command, *server.Server, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		srv, err := load()
		if err != nil {
			return err
		}
		if err := run(cmd, srv, args); err != nil {
			return &alphagsm.OpError{Op: op, Server: srv.Name(), Err: err}
		}
		return nil
	}
}

func createCmd(name string, env server.Env) *cobra.Command {
	return &cobra.Command{
		Use:   "create MODULE",
		Short: "Create the server using a game module",
		Long:  "Create the server using a game module. Known modules: " + strings.Join(gamemodule.IDs(), ", ") + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := server.Create(name, args[0], env)
			if err != nil {
				return &alphagsm.OpError{Op: alphagsm.CmdCreate, Server: name, Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s using %s. Run 'alphagsm %s setup' next.\n", name, srv.ModuleID(), name)
			return nil
		},
	}
}

func setupCmd(load loader) *cobra.Command {
	var (
		noAsk  bool
		values map[string]string
	)
	cmd := &cobra.Command{
		Use:   "setup [ARGS...]",
		Short: "Configure the server and install its files",
		Long: "Setup the game server. This processes the required settings and does any install task so that " +
			"a 'start' should work. With --noask missing settings make setup fail instead of prompting.",
		RunE: withServer(alphagsm.CmdSetup, load, func(cmd *cobra.Command, srv *server.Server, args []string) error {
			return srv.Setup(cmd.Context(), gamemodule.ConfigureOptions{
				Args:   args,
				Values: values,
				Ask:    !noAsk,
			})
		}),
	}
	cmd.Flags().BoolVarP(&noAsk, "noask", "n", false, "don't ask for input, fail if a setting is missing")
	cmd.Flags().StringToStringVarP(&values, "option", "o", nil, "module setting as key=value")
	return cmd
}

func startCmd(load loader) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server",
		Args:  cobra.NoArgs,
		RunE: withServer(alphagsm.CmdStart, load, func(cmd *cobra.Command, srv *server.Server, _ []string) error {
			return srv.Start(cmd.Context(), server.StartOptions{Follow: follow})
		}),
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing the server log until it exits")
	return cmd
}

func stopCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the server, killing it if it doesn't stop",
		Args:  cobra.NoArgs,
		RunE: withServer(alphagsm.CmdStop, load, func(cmd *cobra.Command, srv *server.Server, _ []string) error {
			return srv.Stop(cmd.Context())
		}),
	}
}

func statusCmd(load loader) *cobra.Command {
	var verbose int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the server is running",
		Args:  cobra.NoArgs,
		RunE: withServer(alphagsm.CmdStatus, load, func(cmd *cobra.Command, srv *server.Server, _ []string) error {
			return srv.Status(cmd.Context(), verbose)
		}),
	}
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "more detail, repeat for the data store")
	return cmd
}

func messageCmd(load loader) *cobra.Command {
	var (
		to    []string
		parse bool
	)
	cmd := &cobra.Command{
		Use:   "message MESSAGE...",
		Short: "Send a chat message to the players",
		Args:  cobra.MinimumNArgs(1),
		RunE: withServer(alphagsm.CmdMessage, load, func(cmd *cobra.Command, srv *server.Server, args []string) error {
			return srv.Message(cmd.Context(), gamemodule.Message{
				Text:    strings.Join(args, " "),
				Targets: to,
				Parse:   parse,
			})
		}),
	}
	cmd.Flags().StringSliceVarP(&to, "to", "t", nil, "players to send to (default everyone)")
	cmd.Flags().BoolVarP(&parse, "parse", "p", false, "expand player selectors such as @p in the message")
	return cmd
}

func connectCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Attach to the server console, detach with Ctrl-a d",
		Args:  cobra.NoArgs,
		RunE: withServer(alphagsm.CmdConnect, load, func(cmd *cobra.Command, srv *server.Server, _ []string) error {
			return srv.Connect(cmd.Context())
		}),
	}
}

func dumpCmd(load loader) *cobra.Command {
	var yaml bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the server's data store",
		Args:  cobra.NoArgs,
		RunE: withServer(alphagsm.CmdDump, load, func(cmd *cobra.Command, srv *server.Server, _ []string) error {
			return srv.Dump(yaml)
		}),
	}
	cmd.Flags().BoolVar(&yaml, "yaml", false, "print YAML instead of JSON")
	return cmd
}

func setCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a value in the data store",
		Long: "Set a value in the data store. KEY is dot separated; VALUE may be '[]' or '{}' to add a new " +
			"node, a JSON literal, or plain text. The game module may refuse or convert the value.",
		Args: cobra.ExactArgs(2),
		RunE: withServer(alphagsm.CmdSet, load, func(cmd *cobra.Command, srv *server.Server, args []string) error {
			return srv.Set(cmd.Context(), args[0], args[1])
		}),
	}
}

func moduleCmd(srv *server.Server, spec gamemodule.CommandSpec) *cobra.Command {
	args := cobra.MinimumNArgs(spec.MinArgs)
	if spec.MaxArgs >= 0 {
		args = cobra.RangeArgs(spec.MinArgs, spec.MaxArgs)
	}
	use := spec.Usage
	if use == "" {
		use = spec.Name
	}
	return &cobra.Command{
		Use:   use,
		Short: spec.Short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return srv.RunCommand(cmd.Context(), spec.Name, args)
		},
	}
}
