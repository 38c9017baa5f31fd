package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fhirpath/internal/config"
	"github.com/ehr/fhirpath/internal/fhirpath"
	"github.com/ehr/fhirpath/internal/fhirpath/ast"
	"github.com/ehr/fhirpath/internal/fhirpath/ir"
	"github.com/ehr/fhirpath/internal/fhirpath/schema"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
	"github.com/ehr/fhirpath/internal/fhirpath/viz"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fhirpathd",
		Short: "FHIRPath expression evaluator",
	}

	rootCmd.AddCommand(evalCmd())
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(functionsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger from configuration: console output in
// development, JSON elsewhere.
func newLogger(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// newEngine assembles an engine from configuration, loading any
// StructureDefinition files found under the schema directory.
func newEngine(cfg *config.Config, logger zerolog.Logger) (*fhirpath.Engine, error) {
	registry := schema.NewRegistry()
	if cfg.SchemaDir != "" {
		n, err := loadSchemaDir(registry, cfg.SchemaDir)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("definitions", n).Str("dir", cfg.SchemaDir).Msg("loaded structure definitions")
	}
	return fhirpath.New(
		fhirpath.WithSchema(registry),
		fhirpath.WithStrictTypes(cfg.StrictTypes),
		fhirpath.WithPlanCacheSize(cfg.PlanCacheSize),
		fhirpath.WithLogger(logger),
	), nil
}

// loadSchemaDir registers every .json file in dir as a StructureDefinition.
func loadSchemaDir(r *schema.Registry, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read schema dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		if err := r.LoadStructureDefinition(data); err != nil {
			return n, fmt.Errorf("%s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

// readResource loads the resource JSON from a file path, or stdin when the
// path is "-" or empty.
func readResource(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression against a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourcePath, _ := cmd.Flags().GetString("resource")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			engine, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			data, err := readResource(resourcePath)
			if err != nil {
				return err
			}

			out, err := engine.Evaluate(data, args[0])
			if err != nil {
				return err
			}
			return printCollection(cmd.OutOrStdout(), out, asJSON)
		},
	}
	cmd.Flags().String("resource", "-", "Resource JSON file (default: stdin)")
	cmd.Flags().Bool("json", false, "Render results as a JSON array")
	return cmd
}

// printCollection renders each result on its own line, or the whole
// collection as one JSON array.
func printCollection(w io.Writer, out value.Collection, asJSON bool) error {
	if asJSON {
		items := make([]string, 0, out.Len())
		for i := 0; i < out.Len(); i++ {
			items = append(items, renderJSON(out.Get(i)))
		}
		fmt.Fprintf(w, "[%s]\n", strings.Join(items, ","))
		return nil
	}
	for i := 0; i < out.Len(); i++ {
		fmt.Fprintln(w, out.Get(i).String())
	}
	return nil
}

// renderJSON renders a single value as a JSON fragment; string-like kinds
// are quoted, everything else falls back to the value's text form.
func renderJSON(v value.Value) string {
	switch v.Kind() {
	case value.KindBoolean, value.KindInteger, value.KindDecimal:
		return v.String()
	default:
		b, err := json.Marshal(v.String())
		if err != nil {
			return `""`
		}
		return string(b)
	}
}

func explainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <expression>",
		Short: "Show the syntax tree, typed IR and compiled plan of an expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseType, _ := cmd.Flags().GetString("type")
			dot, _ := cmd.Flags().GetBool("dot")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if baseType == "" {
				baseType = cfg.BaseType
			}
			logger := newLogger(cfg)

			root, err := ast.Parse(args[0])
			if err != nil {
				return err
			}
			node, err := ir.Analyze(root)
			if err != nil {
				return err
			}

			registry := schema.NewRegistry()
			if cfg.SchemaDir != "" {
				if _, err := loadSchemaDir(registry, cfg.SchemaDir); err != nil {
					return err
				}
			}
			if err := ir.NewResolver(registry, cfg.StrictTypes).Resolve(node, baseType); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if dot {
				fmt.Fprint(w, viz.DotIR(node))
				return nil
			}

			engine, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			compiled, err := engine.Compile(args[0], baseType)
			if err != nil {
				return err
			}

			fmt.Fprintln(w, "== syntax tree ==")
			fmt.Fprint(w, viz.RenderAST(root))
			fmt.Fprintln(w, "== typed ir ==")
			fmt.Fprint(w, viz.RenderIR(node))
			fmt.Fprintln(w, "== plan ==")
			fmt.Fprint(w, compiled.Explain())
			fmt.Fprintf(w, "result type: %s\n", compiled.ResultType())
			return nil
		},
	}
	cmd.Flags().String("type", "", "Base resource type for type resolution")
	cmd.Flags().Bool("dot", false, "Emit the typed IR as Graphviz DOT")
	return cmd
}

func functionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the built-in function registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			funcs := ir.Functions()
			sort.Slice(funcs, func(i, j int) bool {
				if funcs[i].Category != funcs[j].Category {
					return funcs[i].Category < funcs[j].Category
				}
				return funcs[i].Name < funcs[j].Name
			})

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-14s %-18s %s\n", "CATEGORY", "NAME", "ARITY")
			category := ""
			for _, m := range funcs {
				arity := fmt.Sprintf("%d", m.MinArity)
				if m.MaxArity != m.MinArity {
					arity = fmt.Sprintf("%d..%d", m.MinArity, m.MaxArity)
				}
				label := ""
				if m.Category != category {
					label = m.Category
					category = m.Category
				}
				fmt.Fprintf(w, "%-14s %-18s %s\n", label, m.Name, arity)
			}
			return nil
		},
	}
}
