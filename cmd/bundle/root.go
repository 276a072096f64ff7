package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Defacto2/bundle"
	"github.com/Defacto2/bundle/normalize"
	"github.com/Defacto2/bundle/rezip"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ErrRepack = errors.New("repack destination must end with .zip, .tgz or .tar.gz")

// app is the state shared by the commands once the flags are parsed.
type app struct {
	cfg Config
	log *zap.SugaredLogger
	out io.Writer
}

func newRoot(out io.Writer) *cobra.Command {
	a := &app{out: out, log: zap.NewNop().Sugar()}
	root := &cobra.Command{
		Use:   "bundle <path>",
		Short: "Identify, extract and tidy a diagnostic bundle",
		Long: `Identify, extract and tidy a diagnostic bundle.

The path is either an extracted bundle directory or a bundle archive
(.zip, .tgz, .tar.gz). An archive is moved into the working directory
and extracted there. The compressed logs are then expanded, the JSON
files are indented and the cluster nodes found in the bundle are listed.

Recognized bundle types: ` + typeNames() + `.`,
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = a.log.Sync() },
		RunE: func(_ *cobra.Command, args []string) error {
			return a.inspect(args[0])
		},
	}
	root.SetOut(out)
	Register(root.PersistentFlags(), &a.cfg)
	root.AddCommand(
		&cobra.Command{
			Use:   "type <path>",
			Short: "Print the type of a bundle",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.classify(args[0])
			},
		},
		&cobra.Command{
			Use:   "extract <path>",
			Short: "Extract a bundle archive and print its directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.extract(args[0])
			},
		},
		&cobra.Command{
			Use:   "normalize <dir>",
			Short: "Expand the compressed logs and indent the JSON files of an extracted bundle",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.normalize(args[0])
			},
		},
		&cobra.Command{
			Use:   "repack <dir> <dest>",
			Short: "Compress an extracted bundle into a .zip or .tar.gz archive",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.repack(args[0], args[1])
			},
		},
	)
	return root
}

// typeNames returns the recognized bundle types as a comma separated list.
func typeNames() string {
	types := bundle.Types()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

// setup applies the environment variables, validates the flags and builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var notes []string
	FillFromEnv(cmd.Flags(), EnvPrefix, func(format string, args ...any) {
		notes = append(notes, fmt.Sprintf(format, args...))
	})
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	l, err := a.cfg.Logger()
	if err != nil {
		return err
	}
	a.log = l.Sugar()
	for _, note := range notes {
		a.log.Warn(note)
	}
	return nil
}

func (a *app) extractor() bundle.Extractor {
	return bundle.Extractor{Dir: a.cfg.Workdir, Log: a.log}
}

// inspect runs the whole pipeline on the named bundle.
func (a *app) inspect(name string) error {
	t, err := bundle.Classify(name)
	if err != nil {
		return err
	}
	a.log.Infof("Bundle type is %s", t)
	dir, err := a.extractor().Extract(name, t)
	if err != nil {
		return err
	}
	if err := a.normalize(dir); err != nil {
		return err
	}
	nodes, err := bundle.Nodes(dir, t)
	if errors.Is(err, bundle.ErrNoNodes) {
		a.log.Warnw("No nodes found", "dir", dir)
	} else if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\t%s\n", t, dir)
	for _, n := range nodes {
		fmt.Fprintf(a.out, "%-16s %-15s %s\n", n.IP, n.Role, n.Dir)
	}
	return nil
}

func (a *app) classify(name string) error {
	t, err := bundle.Classify(name)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, t)
	return nil
}

func (a *app) extract(name string) error {
	t, err := bundle.Classify(name)
	if err != nil {
		return err
	}
	dir, err := a.extractor().Extract(name, t)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, dir)
	return nil
}

// normalize expands and formats the files of the extracted bundle dir.
// Files that fail are logged and do not stop the run.
func (a *app) normalize(dir string) error {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return fmt.Errorf("normalize %w: %s", bundle.ErrPath, dir)
	}
	n := normalize.Normalizer{Log: a.log}
	if !a.cfg.NoGunzip {
		r, err := n.Gunzip(dir)
		if err != nil {
			return err
		}
		a.log.Infof("Expanded %d files, %d failed", r.Done, len(r.Failed))
	}
	if !a.cfg.NoJSON {
		r, err := n.FormatJSON(dir)
		if err != nil {
			return err
		}
		a.log.Infof("Formatted %d JSON files, %d failed", r.Done, len(r.Failed))
	}
	return nil
}

func (a *app) repack(dir, dest string) error {
	lower := strings.ToLower(dest)
	var (
		n   int64
		err error
	)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		if n, err = rezip.CompressDir(dir, dest); err == nil {
			err = rezip.Test(dest)
		}
	case strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".tar.gz"):
		n, err = rezip.TarGzDir(dir, dest)
	default:
		return fmt.Errorf("%w: %s", ErrRepack, dest)
	}
	if err != nil {
		return err
	}
	a.log.Infof("Repacked %s into %s", dir, dest)
	fmt.Fprintf(a.out, "%s\t%d bytes\n", dest, n)
	return nil
}
