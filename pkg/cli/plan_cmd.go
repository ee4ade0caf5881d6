package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reportql/internal/domain"
	"reportql/internal/rql"
)

// planColumn is the JSON shape of one compiled column.
type planColumn struct {
	Field      string `json:"field"`
	Column     string `json:"column"`
	Type       string `json:"type"`
	Repeated   bool   `json:"repeated,omitempty"`
	Customizer string `json:"customizer,omitempty"`
}

type planDoc struct {
	Script    string       `json:"script"`
	Resource  string       `json:"resource"`
	QueryText string       `json:"query_text"`
	Columns   []planColumn `json:"columns"`
	Functions []string     `json:"functions,omitempty"`
}

func newPlanCmd() *cobra.Command {
	var (
		schemaPath string
		macros     []string
	)

	cmd := &cobra.Command{
		Use:   "plan <script.rql>...",
		Short: "Compile scripts and print their plans",
		Long:  "Compiles each script without fetching anything and prints the resolved plan as JSON, one document per script.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(schemaPath)
			if err != nil {
				return err
			}
			params, err := parseParams(macros)
			if err != nil {
				return err
			}
			compiler := rql.NewCompiler(reg)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, path := range args {
				text, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				plan, err := compiler.Compile(string(text), params)
				if err != nil {
					return fmt.Errorf("compile %s: %w", name, err)
				}
				if err := enc.Encode(planToDoc(name, plan)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "Path to the reporting schema YAML (required)")
	cmd.Flags().StringArrayVar(&macros, "macro", nil, "Macro binding key=value (repeatable)")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func planToDoc(name string, plan *domain.QueryPlan) planDoc {
	doc := planDoc{
		Script:    name,
		Resource:  plan.Resource,
		QueryText: plan.QueryText,
	}
	for i, field := range plan.Fields {
		doc.Columns = append(doc.Columns, planColumn{
			Field:      field,
			Column:     plan.ColumnNames[i],
			Type:       columnTypeString(plan.ColumnTypes[i]),
			Repeated:   plan.ColumnTypes[i].Repeated,
			Customizer: customizerString(plan.Customizers[i]),
		})
	}
	for fn := range plan.Functions {
		doc.Functions = append(doc.Functions, fn)
	}
	return doc
}

func columnTypeString(ft domain.FieldType) string {
	switch ft.Kind {
	case domain.KindEnum:
		return "enum:" + ft.TypeName
	case domain.KindStruct:
		return "struct:" + ft.TypeName
	default:
		return ft.TypeName
	}
}

func customizerString(c domain.Customizer) string {
	switch c.Kind {
	case domain.CustomizerResourceIndex:
		return fmt.Sprintf("~%d", c.Index)
	case domain.CustomizerFunction:
		return ":$" + c.Name
	case domain.CustomizerNestedField:
		return ":" + c.Path
	default:
		return ""
	}
}
