package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"catreg/internal/config"
	"catreg/internal/domain/auth"
	"catreg/internal/infrastructure/storage/postgres"
	"catreg/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if err := postgres.MigrateUp(cmd.Context(), cfg.DatabaseURL, migrations.FS); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <type>",
		Short: "Write an entity type as CSV to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			columns, _ := cmd.Flags().GetStringSlice("columns")

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.service.Export(cmd.Context(), args[0], columns, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSlice("columns", nil, "Columns to export (default: label field and active)")
	return cmd
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered entity types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			reg, err := setupMetadataRegistry(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCOLLECTION\tFIELDS\tSORTABLE\tEXPORTABLE\tRELATION")
			for _, def := range reg.List() {
				relation := ""
				if child, fk, ok := reg.ChildrenOf(def.Key); ok {
					relation = fmt.Sprintf("parent of %s (%s)", child.Key, fk)
				} else if parent, ok := reg.FindParentType(def.Key); ok {
					relation = "child of " + parent
				}
				names := make([]string, len(def.Fields))
				for i, f := range def.Fields {
					names[i] = f.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\n",
					def.Key, def.Collection, strings.Join(names, ","), def.Sortable, def.Exportable, relation)
			}
			return w.Flush()
		},
	}
}

// tokenCmd issues an access token signed with JWT_SECRET. Used for local
// testing and service accounts; there is no login endpoint.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			roles, _ := cmd.Flags().GetStringSlice("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
			jwtConfig.Issuer = cfg.JWTIssuer
			jwtConfig.AccessTokenTTL = ttl

			token, expires, err := auth.NewJWTService(jwtConfig).GenerateAccessToken(args[0], email, roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(os.Stderr, "expires at %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email claim")
	cmd.Flags().StringSlice("roles", nil, "Roles claim, e.g. admin")
	cmd.Flags().Duration("ttl", 15*time.Minute, "Token lifetime")
	return cmd
}
