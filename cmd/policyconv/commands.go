package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toricodesthings/policy-extraction-service/internal/config"
	"github.com/toricodesthings/policy-extraction-service/internal/convert"
	"github.com/toricodesthings/policy-extraction-service/internal/export"
	"github.com/toricodesthings/policy-extraction-service/internal/logging"
	"github.com/toricodesthings/policy-extraction-service/internal/policy"
	"github.com/toricodesthings/policy-extraction-service/internal/types"
)

type converterFactory func(cfg config.Config, logger *zap.Logger, opts ...convert.Option) (*convert.Converter, error)

type cli struct {
	build    converterFactory
	logLevel string
	noOCR    bool
}

func newRootCmd(build converterFactory) *cobra.Command {
	c := &cli{build: build}

	root := &cobra.Command{
		Use:   "policyconv",
		Short: "Convert auto fleet policy PDFs into Excel workbooks",
		Long: `policyconv reads an auto fleet insurance policy PDF, extracts the policy
header and one record per insured vehicle, and writes an xlsx workbook.

Configuration comes from the same environment variables as the HTTP server
(OUTPUT_DIR, OCR_LANG, SCHEMA_PATH, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(c.convertCmd(), c.textCmd(), c.schemaCmd())
	return root
}

func (c *cli) setup() (config.Config, *convert.Converter, func(), error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return cfg, nil, nil, err
	}
	logger, err := logging.New(c.logLevel, "policyconv")
	if err != nil {
		return cfg, nil, nil, err
	}
	done := func() { _ = logger.Sync() }

	var opts []convert.Option
	if c.noOCR {
		opts = append(opts, convert.WithAcquisitionOptions(types.AcquisitionOptions{DisableOCR: true}))
	}
	conv, err := c.build(cfg, logger, opts...)
	if err != nil {
		done()
		return cfg, nil, nil, err
	}
	return cfg, conv, done, nil
}

func (c *cli) convertCmd() *cobra.Command {
	var (
		outDir  string
		asJSON  bool
		noWrite bool
	)

	cmd := &cobra.Command{
		Use:   "convert <file.pdf>",
		Short: "Convert a policy PDF into an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conv, done, err := c.setup()
			if err != nil {
				return err
			}
			defer done()

			data, err := convert.ReadFile(args[0], cfg.MaxUploadBytes)
			if err != nil {
				return err
			}

			out, err := conv.Convert(context.Background(), data)
			if err != nil {
				return err
			}

			path := ""
			if !noWrite {
				dir := outDir
				if dir == "" {
					dir = cfg.OutputDir
				}
				if path, err = convert.WriteOutput(dir, out); err != nil {
					return err
				}
			}

			if asJSON {
				return writeReport(cmd.OutOrStdout(), conv.Schema(), out, path)
			}

			w := cmd.OutOrStdout()
			if path != "" {
				fmt.Fprintf(w, "Arquivo processado com sucesso: %s\n", path)
			}
			fmt.Fprintf(w, "veículos: %d (segmentação: %s, texto: %s)\n",
				len(out.Document.Vehicles), out.Strategy, out.Acquisition.Method)
			for _, warn := range out.Warnings {
				fmt.Fprintf(w, "aviso: %s\n", warn)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory for the workbook (default $OUTPUT_DIR)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the extracted records as JSON")
	cmd.Flags().BoolVar(&noWrite, "dry-run", false, "Extract without writing the workbook")
	cmd.Flags().BoolVar(&c.noOCR, "no-ocr", false, "Skip the OCR tier")
	return cmd
}

func (c *cli) textCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text <file.pdf>",
		Short: "Print the text acquired from a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conv, done, err := c.setup()
			if err != nil {
				return err
			}
			defer done()

			data, err := convert.ReadFile(args[0], cfg.MaxUploadBytes)
			if err != nil {
				return err
			}
			res, err := conv.Text(context.Background(), data)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "método: %s, páginas: %d, tokens descartados: %d\n",
				res.Method, res.TotalPages, res.DroppedTokens)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return err
		},
	}
	cmd.Flags().BoolVar(&c.noOCR, "no-ocr", false, "Skip the OCR tier")
	return cmd
}

func (c *cli) schemaCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "List the extracted fields in column order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if raw {
				_, err := w.Write(policy.Raw())
				return err
			}

			schema, err := policy.Load(config.Load().SchemaPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "[%s]\n", export.SheetHeader)
			for _, f := range schema.Header {
				fmt.Fprintln(w, f.Name)
			}
			fmt.Fprintf(w, "\n[%s]\n%s\n", export.SheetVehicles, export.ColumnItem)
			for _, f := range schema.Vehicle {
				fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Group)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "yaml", false, "Print the embedded schema definition")
	return cmd
}

type report struct {
	ExcelPath string           `json:"excel_path,omitempty"`
	RequestID string           `json:"request_id"`
	Method    string           `json:"method"`
	Strategy  string           `json:"strategy"`
	Warnings  []string         `json:"warnings"`
	Header    map[string]any   `json:"header"`
	Vehicles  []map[string]any `json:"vehicles"`
}

func writeReport(w io.Writer, schema *policy.Schema, out convert.Outcome, path string) error {
	r := report{
		ExcelPath: path,
		RequestID: out.RequestID,
		Method:    out.Acquisition.Method,
		Strategy:  string(out.Strategy),
		Warnings:  out.Warnings,
		Header:    recordMap(schema.Header, out.Document.Header),
		Vehicles:  make([]map[string]any, 0, len(out.Document.Vehicles)),
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	for _, v := range out.Document.Vehicles {
		m := recordMap(schema.Vehicle, v)
		m[export.ColumnItem] = v.Item
		r.Vehicles = append(r.Vehicles, m)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func recordMap(fs []policy.Field, rec policy.Record) map[string]any {
	m := make(map[string]any, len(fs)+1)
	for _, f := range fs {
		m[f.Name] = rec.Get(f.Name).Cell()
	}
	return m
}
