package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/config"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/cipher"
	"github.com/dropDatabas3/authcore/internal/store/pg"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func openStore(ctx context.Context, cfg *config.Config) (*pg.Store, error) {
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
		return nil, fmt.Errorf("this command needs storage.driver=postgres and a DSN")
	}
	return pg.New(ctx, cfg.Storage.DSN, pg.Options{MaxConns: 2})
}

func main() {
	_ = godotenv.Load()

	var configPath string
	baseURL := envOr("AUTHCORE_URL", "http://localhost:8080")

	root := &cobra.Command{
		Use:          "authcorectl",
		Short:        "CLI operativa de authcore",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "ruta del YAML de configuración")
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env AUTHCORE_URL)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{Env: "dev", Level: "warn", ServiceName: "authcorectl"})
		return cfg, nil
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Chequea /healthz y /readyz del servicio",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			for _, path := range []string{"/healthz", "/readyz"} {
				resp, err := client.Get(baseURL + path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				fmt.Printf("%s %d %s\n", path, resp.StatusCode, string(body))
				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("%s returned %d", path, resp.StatusCode)
				}
			}
			return nil
		},
	}

	var dryRun bool
	migrateCmd := &cobra.Command{
		Use:   "totp-migrate",
		Short: "Cifra los secretos TOTP guardados en texto plano",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			c, err := cipher.New(cfg.Crypto.SecretKey, cfg.Crypto.SecretIV)
			if err != nil {
				return err
			}

			ids, err := store.ListTotpPrincipalIDs(ctx)
			if err != nil {
				return err
			}

			principals := store.Principals()
			var migrated, skipped, failed int
			for _, id := range ids {
				if dryRun {
					p, err := principals.GetByID(ctx, id)
					if err != nil {
						failed++
						continue
					}
					if p.TotpSecret != "" && !cipher.IsEncrypted(p.TotpSecret) {
						fmt.Printf("would migrate %s\n", id)
						migrated++
					} else {
						skipped++
					}
					continue
				}
				ok, err := auth.MigrateLegacySecret(ctx, principals, c, id)
				switch {
				case err != nil:
					fmt.Fprintf(os.Stderr, "migrate %s: %v\n", id, err)
					failed++
				case ok:
					migrated++
				default:
					skipped++
				}
			}
			fmt.Printf("migrated=%d skipped=%d failed=%d\n", migrated, skipped, failed)
			if failed > 0 {
				return fmt.Errorf("%d principals failed to migrate", failed)
			}
			return nil
		},
	}
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "solo reporta, no escribe")

	var principalID string
	revokeCmd := &cobra.Command{
		Use:   "revoke-sessions",
		Short: "Revoca todos los refresh tokens activos de un principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if principalID == "" {
				return fmt.Errorf("--principal is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Refresh().RevokeAllByPrincipal(ctx, principalID, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("revoked=%d\n", n)
			return nil
		},
	}
	revokeCmd.Flags().StringVar(&principalID, "principal", "", "ID del principal")

	var rolePrincipal, role string
	addRoleCmd := &cobra.Command{
		Use:   "add-role",
		Short: "Agrega un rol a un principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rolePrincipal == "" || role == "" {
				return fmt.Errorf("--principal and --role are required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Principals().AddRole(ctx, rolePrincipal, role); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	addRoleCmd.Flags().StringVar(&rolePrincipal, "principal", "", "ID del principal")
	addRoleCmd.Flags().StringVar(&role, "role", "", "rol a agregar")

	root.AddCommand(healthCmd, migrateCmd, revokeCmd, addRoleCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
