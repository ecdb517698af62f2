package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"recomp/pkg/cache"
	"recomp/pkg/config"
	relf "recomp/pkg/elf"
	"recomp/pkg/generate"
	"recomp/pkg/log"
	"recomp/pkg/pass"
	"recomp/pkg/utils"
)

var successPrinter = &pterm.PrefixPrinter{
	MessageStyle: pterm.NewStyle(pterm.FgDefault),
	Prefix: pterm.Prefix{
		Style: pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack),
		Text:  "Done",
	},
}

type app struct {
	configPath string
	cacheDir   string
	logSpec    string

	cfg   *config.Config
	store *cache.Store
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.ApplyLogSettings(log.Registry()); err != nil {
		return err
	}
	if a.logSpec != "" {
		if err := log.Registry().ApplySettings(a.logSpec); err != nil {
			return err
		}
	}
	if a.cacheDir != "" {
		cfg.CacheDir = a.cacheDir
	}
	a.cfg = cfg
	a.store, err = cache.OpenDir(cfg.CacheDir)
	return err
}

func done(out io.Writer, format string, args ...any) {
	fmt.Fprintln(out, successPrinter.Sprint(fmt.Sprintf(format, args...)))
}

func newParseCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "parse <elf>",
		Short: "Build a module from an ELF image and cache it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contents, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "reading input")
			}
			elfMap, err := relf.NewElfMap(args[0], contents)
			if err != nil {
				return err
			}
			module, err := relf.NewElfSpace(elfMap).BuildModule()
			if err != nil {
				return err
			}
			if name == "" {
				name = module.GetName()
			}
			if err := a.store.Save(name, module); err != nil {
				return err
			}
			done(cmd.OutOrStdout(), "parsed %s into %s (%d functions, %d data regions)", args[0], name,
				module.GetFunctionList().GetChildren().Len(), module.GetDataRegionList().GetChildren().Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "cache name (defaults to the module name)")
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump <name>",
		Short: "Print a cached module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, header, err := a.store.Load(args[0])
			if err != nil {
				return err
			}
			root := pass.Dump(module)
			switch format {
			case "yaml":
				out, err := root.YAML()
				if err != nil {
					return errors.Wrap(err, "rendering yaml")
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			case "tree":
				tree, err := pterm.DefaultTree.WithRoot(pterm.NewTreeFromLeveledList(root.LeveledList())).Srender()
				if err != nil {
					return errors.Wrap(err, "rendering tree")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %s\n%s", header.Session, tree)
				return nil
			}
			return errors.Errorf("unknown format %q", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "tree", "output format: tree or yaml")
	return cmd
}

func newEmitCmd(a *app) *cobra.Command {
	var output, machine string
	cmd := &cobra.Command{
		Use:   "emit <name>",
		Short: "Lay out a cached module and write it as an ELF executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := relf.ParseMachineType(machine)
			if !ok {
				return errors.Errorf("unknown machine %q", machine)
			}
			module, _, err := a.store.Load(args[0])
			if err != nil {
				return err
			}

			layout := pass.NewLayoutPass(a.cfg.BaseAddress)
			module.Accept(layout)
			module.Accept(pass.NewFixDataRegionsPass(layout.End(), a.cfg.PageAlign))

			gen := generate.NewElfGen(module, a.cfg.BaseAddress, a.cfg.PageAlign)
			gen.SetMachine(m)
			image, err := gen.Generate()
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, image, 0o755); err != nil {
				return errors.Wrap(err, "writing output")
			}
			done(cmd.OutOrStdout(), "wrote %s (%d bytes)", output, len(image))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "a.out", "output file")
	cmd.Flags().StringVar(&machine, "machine", relf.MachineTypeX86_64.String(), "target machine: x86_64, aarch64 or riscv64")
	return cmd
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "recomp [subcommand]",
		Short:             "Load ELF images into a chunk IR, cache it, and write it back out",
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "recomp.toml", "config file")
	root.PersistentFlags().StringVar(&a.cacheDir, "cache-dir", "", "cache directory (overrides the config)")
	root.PersistentFlags().StringVar(&a.logSpec, "log", "", "log levels, e.g. chunk=5,generate=2")
	root.AddCommand(newParseCmd(a), newDumpCmd(a), newEmitCmd(a))
	return root
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			utils.Fatal(r)
		}
	}()
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
