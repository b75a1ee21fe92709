// Command hellodoc es la herramienta de desarrollo: migraciones, documentos y
// operaciones de sesión contra la configuración de una app.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dropDatabas3/hellodoc"
	"github.com/dropDatabas3/hellodoc/config"
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/providers"
	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	envFiles   []string
	out        string

	cfg *config.Config
	app *hellodoc.App
}

// loadConfig: .env → YAML (si hay) → HELLODOC_*.
func (c *cli) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	if err := config.LoadEnvFiles(c.envFiles...); err != nil {
		return nil, err
	}
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.FromEnv()
	}
	if err := cfg.OpenSecrets(); err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *cli) open(ctx context.Context) (*hellodoc.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	app, err := hellodoc.New(ctx, cfg, hellodoc.WithAuthorizer(&providers.LoopbackAuthorizer{
		Addr: cfg.Providers.CallbackAddr,
		Open: func(url string) error {
			fmt.Fprintf(os.Stderr, "Abrí esta URL en el navegador para continuar:\n\n  %s\n\n", url)
			return nil
		},
	}))
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

func (c *cli) close() {
	if c.app != nil {
		_ = c.app.Close()
	}
}

func (c *cli) print(v any) error {
	if c.out == "json" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	switch x := v.(type) {
	case string:
		fmt.Println(x)
	default:
		b, _ := json.Marshal(x)
		fmt.Println(string(b))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{out: "text"}
	root := &cobra.Command{
		Use:           "hellodoc",
		Short:         "CLI de desarrollo para apps hellodoc (documentos, sesión, migraciones)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("HELLODOC_CONFIG"), "Archivo YAML de configuración (env HELLODOC_CONFIG)")
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", nil, "Archivos .env a cargar antes de la config (default .env)")
	root.PersistentFlags().StringVar(&c.out, "out", c.out, "Formato de salida: json|text")

	root.AddCommand(migrateCmd(c), docCmd(c), authCmd(c), secretCmd(c))

	err := root.ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if errs.IsKind(err, errs.KindConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
