package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"retail-dashboard/internal/export"
	"retail-dashboard/internal/models"
	"retail-dashboard/internal/pipeline"
	"retail-dashboard/internal/services"
	"retail-dashboard/internal/ui/format"
)

// criteriaFlags mirrors the sidebar filters on the command line. Unset
// flags keep the full-domain defaults.
type criteriaFlags struct {
	sections   []string
	positions  []string
	promotions []string
	seasonal   []string
	priceMin   float64
	priceMax   float64
	query      string
	file       string
}

func (f *criteriaFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.file, "file", "", "product table to read (defaults to DATA_FILE)")
	fs.StringSliceVar(&f.sections, "section", nil, "sections to include")
	fs.StringSliceVar(&f.positions, "position", nil, "product positions to include")
	fs.StringSliceVar(&f.promotions, "promotion", nil, "promotion values to include")
	fs.StringSliceVar(&f.seasonal, "seasonal", nil, "seasonal values to include")
	fs.Float64Var(&f.priceMin, "price-min", 0, "lower price bound")
	fs.Float64Var(&f.priceMax, "price-max", 0, "upper price bound")
	fs.StringVar(&f.query, "q", "", "case-insensitive product name search")
}

func (f *criteriaFlags) criteria(cmd *cobra.Command, defaults pipeline.Criteria) pipeline.Criteria {
	c := defaults
	fs := cmd.Flags()
	if fs.Changed("section") {
		c.Sections = f.sections
	}
	if fs.Changed("position") {
		c.Positions = f.positions
	}
	if fs.Changed("promotion") {
		c.Promotions = f.promotions
	}
	if fs.Changed("seasonal") {
		c.Seasonal = f.seasonal
	}
	if fs.Changed("price-min") {
		c.PriceMin = f.priceMin
	}
	if fs.Changed("price-max") {
		c.PriceMax = f.priceMax
	}
	c.NameQuery = strings.TrimSpace(f.query)
	return c
}

// view loads the configured table and applies the flag criteria.
func (f *criteriaFlags) view(cmd *cobra.Command, envFile string) (*pipeline.View, error) {
	cfg, logger, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}
	path := cfg.Data.File
	if f.file != "" {
		path = f.file
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), loadTimeout)
	defer cancel()

	ds, err := (&services.FileSource{Path: path, Sheet: cfg.Data.Sheet}).Load(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("product data loaded", "records", ds.Len(), "source", ds.Source().String())

	return pipeline.Filter(ds, f.criteria(cmd, pipeline.DefaultCriteria(ds))), nil
}

func newSummaryCmd(envFile *string) *cobra.Command {
	var flags criteriaFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the key metrics and top products for a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := flags.view(cmd, *envFile)
			if err != nil {
				return err
			}
			summary := services.Summarize(cmd.Context(), view)
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}
	flags.register(cmd)
	return cmd
}

func newExportCmd(envFile *string) *cobra.Command {
	var (
		flags criteriaFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered products as CSV or XLSX",
		Long:  "Write the filtered products to --out. The format follows the file extension; \"-\" writes CSV to stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			write, err := exportWriter(out)
			if err != nil {
				return err
			}
			view, err := flags.view(cmd, *envFile)
			if err != nil {
				return err
			}

			if out == "-" {
				return write(cmd.OutOrStdout(), view)
			}
			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := write(file, view); err != nil {
				file.Close()
				return fmt.Errorf("write %s: %w", out, err)
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s products to %s\n", format.Count(view.Len()), out)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (.csv or .xlsx), or - for stdout")
	cmd.MarkFlagRequired("out")
	return cmd
}

func exportWriter(out string) (func(io.Writer, *pipeline.View) error, error) {
	if out == "-" {
		return export.WriteCSV, nil
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".csv":
		return export.WriteCSV, nil
	case ".xlsx":
		return export.WriteXLSX, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q: use .csv or .xlsx", filepath.Ext(out))
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col > 0 {
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		}).
		Headers(headers...)
}

func printSummary(w io.Writer, s *models.Summary) error {
	k := s.KPIs

	kpis := newTable("Metric", "Value", "Compared to all").
		Row("Products", format.Count(k.Products), format.SignedCount(k.ProductsDelta)).
		Row("Revenue", format.Money(k.Revenue, 0), format.Percent(k.RevenueShare)+" of total").
		Row("Average price", format.Money(k.AvgPrice, 2), format.SignedMoney(k.AvgPriceDelta)).
		Row("Units sold", format.Number(k.Units, 0), format.Percent(k.UnitsShare)+" of total")

	top := newTable("Product", "Section", "Position", "Price", "Units", "Revenue")
	for _, p := range s.TopRevenue {
		top.Row(p.Name, p.Section, p.Position,
			format.Money(p.Price, 2), format.Number(p.SalesVolume, 0), format.Money(p.Revenue, 0))
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n",
		titleStyle.Render(fmt.Sprintf("%s of %s products", format.Count(k.Products), format.Count(k.TotalProducts))),
		kpis.Render(),
		titleStyle.Render("Top products by revenue"),
		top.Render(),
	)
	return err
}
