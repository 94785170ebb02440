package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"console-gateway/internal/config"
	"console-gateway/internal/credential"
	"console-gateway/internal/pipeline"
	"console-gateway/internal/service"
	"console-gateway/internal/verbs"
)

type stagesCmd struct{}

func (stagesCmd) Run(cli *config.CLI) error {
	cfg, err := config.Load(cli)
	if err != nil {
		return err
	}
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewConsoleService(cfg, nil, credential.NewMemoryStore(""), nil, nil, logger)
	defer svc.Close()

	return renderStages(svc.Pipeline().Stages(), os.Stdout)
}

type verbsCmd struct {
	Mask string `arg:"" optional:"" help:"Decode a numeric mask instead of listing the configured verbs."`
}

func (c verbsCmd) Run(cli *config.CLI) error {
	if c.Mask != "" {
		m, err := verbs.Parse(c.Mask)
		if err != nil {
			return err
		}
		return renderVerbs(m, os.Stdout)
	}

	allowed := verbs.All
	if cfg, err := config.Load(cli); err == nil {
		allowed = cfg.Gateway.AllowedMask()
	}
	return renderVerbs(allowed, os.Stdout)
}

func renderStages(stages []pipeline.Descriptor, w io.Writer) error {
	data := make([][]string, 0, len(stages))
	for _, d := range stages {
		data = append(data, []string{
			d.ID,
			d.Phase.String(),
			strconv.Itoa(d.Priority),
			strconv.FormatBool(d.Enabled),
		})
	}
	if err := renderTable([]string{"ID", "Phase", "Priority", "Enabled"}, data, w); err != nil {
		return fmt.Errorf("render stages: %w", err)
	}
	return nil
}

// renderVerbs lists every verb with its bit, marking those in allowed.
func renderVerbs(allowed verbs.Mask, w io.Writer) error {
	var data [][]string
	for _, name := range verbs.All.Decode() {
		bit, _ := verbs.Lookup(name)
		mark := "no"
		if allowed.Has(bit) {
			mark = "yes"
		}
		data = append(data, []string{name, strconv.Itoa(int(bit)), mark})
	}
	if err := renderTable([]string{"Verb", "Bit", "Allowed"}, data, w); err != nil {
		return fmt.Errorf("render verbs: %w", err)
	}
	_, err := fmt.Fprintf(w, "\nmask: %d\n", allowed)
	return err
}

func renderTable(header []string, data [][]string, w io.Writer) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(
			tw.Rendition{
				Borders: tw.BorderNone,
				Symbols: tw.NewSymbols(tw.StyleASCII),
				Settings: tw.Settings{
					Lines: tw.Lines{
						ShowHeaderLine: tw.Off,
						ShowFooterLine: tw.Off,
						ShowTop:        tw.Off,
						ShowBottom:     tw.Off,
					},
					Separators: tw.Separators{
						ShowHeader:     tw.Off,
						ShowFooter:     tw.Off,
						BetweenRows:    tw.Off,
						BetweenColumns: tw.Off,
					},
				},
			},
		)),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
	)

	table.Header(header)
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
