package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dropDatabas3/hellodoc/docs"
	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/spf13/cobra"
)

func docCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "doc", Short: "Operaciones sobre documentos"}

	get := &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Lee un documento",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			doc, found, err := app.Docs().Read(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s/%s: not found", args[0], args[1])
			}
			return c.print(doc)
		},
	}

	var createData, createID string
	create := &cobra.Command{
		Use:   "create <collection>",
		Short: "Crea un documento (--data JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(createData)
			if err != nil {
				return err
			}
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			var opts []docs.CreateOption
			if createID != "" {
				opts = append(opts, docs.WithID(createID))
			}
			doc, err := app.Docs().Create(cmd.Context(), args[0], data, opts...)
			if err != nil {
				return err
			}
			return c.print(doc)
		},
	}
	create.Flags().StringVar(&createData, "data", "{}", "Contenido JSON del documento")
	create.Flags().StringVar(&createID, "id", "", "Id explícito (opcional)")

	var updateData string
	update := &cobra.Command{
		Use:   "update <collection> <id>",
		Short: "Merge parcial (--data JSON, claves con puntos para campos anidados)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseData(updateData)
			if err != nil {
				return err
			}
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := app.Docs().Update(cmd.Context(), args[0], args[1], patch)
			if err != nil {
				return err
			}
			return c.print(doc)
		},
	}
	update.Flags().StringVar(&updateData, "data", "{}", "Patch JSON")

	del := &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Borra un documento (idempotente)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.Docs().Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return c.print("ok")
		},
	}

	list := &cobra.Command{
		Use:   "list <collection>",
		Short: "Lista todos los documentos de la colección",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			all, err := app.Docs().GetAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(all)
		},
	}

	var (
		wheres []string
		orders []string
		limitN int
	)
	query := &cobra.Command{
		Use:   "query <collection>",
		Short: `Consulta con filtros: --where "age >= 30" --order-by age:desc --limit 10`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := parseConstraints(wheres, orders, limitN)
			if err != nil {
				return err
			}
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			res, err := app.Docs().Query(cmd.Context(), args[0], cs...)
			if err != nil {
				return err
			}
			return c.print(res)
		},
	}
	query.Flags().StringArrayVar(&wheres, "where", nil, `Filtro "campo op valor" (repetible); valor en JSON o texto`)
	query.Flags().StringArrayVar(&orders, "order-by", nil, "Orden campo[:asc|:desc] (repetible)")
	query.Flags().IntVar(&limitN, "limit", 0, "Máximo de resultados (0 = sin límite)")

	cmd.AddCommand(get, create, update, del, list, query)
	return cmd
}

func parseData(s string) (map[string]any, error) {
	data := map[string]any{}
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, fmt.Errorf("--data: JSON object expected: %w", err)
	}
	return data, nil
}

// parseWhere interpreta "campo op valor". El valor se decodifica como JSON si
// se puede ("30", "true", `["a","b"]`), si no queda como texto.
func parseWhere(s string) (docstore.Filter, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(parts) != 3 {
		return docstore.Filter{}, fmt.Errorf("--where %q: expected \"field op value\"", s)
	}
	op := docstore.Op(parts[1])
	if !op.Valid() {
		return docstore.Filter{}, fmt.Errorf("--where %q: unknown operator %q", s, parts[1])
	}
	raw := strings.TrimSpace(parts[2])
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	return docstore.Where(parts[0], op, v), nil
}

func parseOrder(s string) (docstore.Order, error) {
	field, dir, _ := strings.Cut(s, ":")
	if field == "" {
		return docstore.Order{}, fmt.Errorf("--order-by %q: empty field", s)
	}
	switch docstore.Direction(strings.ToLower(dir)) {
	case "", docstore.Asc:
		return docstore.OrderBy(field, docstore.Asc), nil
	case docstore.Desc:
		return docstore.OrderBy(field, docstore.Desc), nil
	}
	return docstore.Order{}, fmt.Errorf("--order-by %q: direction must be asc or desc", s)
}

func parseConstraints(wheres, orders []string, limit int) ([]docstore.Constraint, error) {
	var cs []docstore.Constraint
	for _, w := range wheres {
		f, err := parseWhere(w)
		if err != nil {
			return nil, err
		}
		cs = append(cs, f)
	}
	for _, o := range orders {
		ord, err := parseOrder(o)
		if err != nil {
			return nil, err
		}
		cs = append(cs, ord)
	}
	if limit > 0 {
		cs = append(cs, docstore.Limit(limit))
	}
	return cs, nil
}
