// Command hobomirror mirrors live directory trees onto approved target
// directories, byte-identically, from point-in-time volume snapshots.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hobomirror/hobomirror/pkg/buildinfo"
	"github.com/hobomirror/hobomirror/pkg/engine"
	"github.com/hobomirror/hobomirror/pkg/plog"
	"github.com/hobomirror/hobomirror/pkg/preflight"
	"github.com/hobomirror/hobomirror/pkg/settings"
	"github.com/hobomirror/hobomirror/pkg/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		fromPaths    []string
		toPaths      []string
		settingsPath string
		logDir       string
		ignorePaths  []string
		ignoreDirs   []string
		refreshACL   bool
		skipACL      bool
		noMetadata   bool
		noSnapshot   bool
		quiet        bool
	)

	exitCode := 0

	rootCmd := &cobra.Command{
		Use:   "hobomirror",
		Short: "Mirror live directory trees onto approved targets, byte-identically",
		Long: `HoboMirror replicates one or more source directories onto target
directories so that each target becomes a byte-identical mirror of a
point-in-time snapshot of its source, including junctions, symlinks,
timestamps, attributes and security descriptors.

Targets must opt in by containing a ` + preflight.GuardFileName + ` file
whose content includes the word "allow".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(fromPaths) != len(toPaths) {
				return fmt.Errorf("--from and --to must be given the same number of times (%d vs %d)",
					len(fromPaths), len(toPaths))
			}
			if len(fromPaths) == 0 {
				return errors.New("at least one --from/--to pair is required")
			}
			if quiet {
				plog.SetQuiet(true)
			}

			var err error
			if settingsPath, err = util.ExpandPath(settingsPath); err != nil {
				return err
			}
			if logDir, err = util.ExpandPath(logDir); err != nil {
				return err
			}

			pairs := make([]engine.Pair, len(fromPaths))
			for i := range fromPaths {
				pairs[i] = engine.Pair{From: fromPaths[i], To: toPaths[i]}
			}

			eng := &engine.Engine{
				Pairs:               pairs,
				SettingsPath:        settingsPath,
				LogDir:              logDir,
				NoSnapshot:          noSnapshot,
				Quiet:               quiet,
				UpdateMetadata:      !noMetadata,
				ExtraIgnorePaths:    ignorePaths,
				ExtraIgnoreDirNames: ignoreDirs,
			}
			switch {
			case refreshACL && skipACL:
				return errors.New("--refresh-acl and --skip-acl are mutually exclusive")
			case refreshACL:
				v := true
				eng.RefreshAccessControl = &v
			case skipACL:
				v := false
				eng.RefreshAccessControl = &v
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			exitCode = eng.Run(ctx)
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.StringArrayVar(&fromPaths, "from", nil, "source directory (repeatable, paired with --to in order)")
	flags.StringArrayVar(&toPaths, "to", nil, "target directory (repeatable, paired with --from in order)")
	flags.StringVar(&settingsPath, "settings", settings.DefaultFileName, "path of the settings file")
	flags.StringVar(&logDir, "log-dir", "logs", "directory for the run's log files")
	flags.StringArrayVar(&ignorePaths, "ignore-path", nil, "absolute source path to exclude (repeatable; merged with the settings file)")
	flags.StringArrayVar(&ignoreDirs, "ignore-dir-name", nil, "directory leaf name to exclude everywhere (repeatable; merged with the settings file)")
	flags.BoolVar(&refreshACL, "refresh-acl", false, "force security descriptor refresh on this run")
	flags.BoolVar(&skipACL, "skip-acl", false, "skip security descriptor refresh on this run")
	flags.BoolVar(&noMetadata, "no-metadata", false, "do not propagate timestamps and attribute bits")
	flags.BoolVar(&noSnapshot, "no-snapshot", false, "read live volumes instead of shadow copies (open files may read inconsistently)")
	flags.BoolVar(&quiet, "quiet", false, "suppress per-event console output")

	rootCmd.AddCommand(newInitCmd(&settingsPath), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		plog.Error(err.Error())
		return 1
	}
	return exitCode
}

// newInitCmd writes a default settings file so operators have something to
// edit, and prints a reminder about the guard file.
func newInitCmd(settingsPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(*settingsPath); err == nil {
				return fmt.Errorf("settings file %s already exists", *settingsPath)
			}
			if err := settings.Default().Save(*settingsPath); err != nil {
				return err
			}
			plog.Info("Settings file written", "path", *settingsPath)
			plog.Info("Remember: each target directory must contain a guard file before it can be mirrored onto",
				"file", preflight.GuardFileName, "content", "allow")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", buildinfo.Name, buildinfo.Version)
		},
	}
}
