package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/claimbridge/internal/claims"
	"github.com/dropDatabas3/claimbridge/internal/propstore"
)

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load(".env")

	var (
		baseURL      = envOr("STORE_BASE_URL", "")
		clientID     = envOr("STORE_CLIENT_ID", "")
		clientSecret = envOr("STORE_CLIENT_SECRET", "")
		audience     = envOr("STORE_AUDIENCE", "")
		categoryID   = envOr("PROPERTY_CATEGORY_ID", "")
		out          = envOr("CLAIMBRIDGE_OUT", "text")
	)

	var store *propstore.HTTPStore

	root := &cobra.Command{
		Use:   "claimbridge",
		Short: "CLI operador para claimbridge (habla directo con el management API)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" || clientID == "" || clientSecret == "" {
				return fmt.Errorf("faltan credenciales del management API (flags o env STORE_BASE_URL / STORE_CLIENT_ID / STORE_CLIENT_SECRET)")
			}
			store = propstore.NewHTTPStore(baseURL, clientID, clientSecret, audience, 30*time.Second)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "store-url", baseURL, "URL base del management API (env STORE_BASE_URL)")
	root.PersistentFlags().StringVar(&clientID, "client-id", clientID, "Client ID (env STORE_CLIENT_ID)")
	root.PersistentFlags().StringVar(&clientSecret, "client-secret", clientSecret, "Client secret (env STORE_CLIENT_SECRET)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	// property ensure
	ensureCmd := &cobra.Command{
		Use:   "ensure",
		Short: "Crear la property de snapshots si no existe (idempotente)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if categoryID == "" {
				return fmt.Errorf("--category es requerido (env PROPERTY_CATEGORY_ID)")
			}
			ctx := context.Background()

			defs, err := store.ListProperties(ctx, propstore.ScopeUser)
			if err != nil {
				return err
			}
			for _, d := range defs {
				if d.Key == propstore.SnapshotPropertyKey {
					fmt.Printf("ok: property %q ya existe (id=%s)\n", d.Key, d.ID)
					return nil
				}
			}

			outcome, err := store.CreateProperty(ctx, propstore.SnapshotProperty(categoryID))
			if err != nil {
				return err
			}
			fmt.Printf("ok: property %q (%s)\n", propstore.SnapshotPropertyKey, outcome)
			return nil
		},
	}
	ensureCmd.Flags().StringVar(&categoryID, "category", categoryID, "Category ID de la property (env PROPERTY_CATEGORY_ID)")

	propertyCmd := &cobra.Command{Use: "property", Short: "Operaciones sobre la property de snapshots"}
	propertyCmd.AddCommand(ensureCmd)

	// snapshot get / clear
	var userID string

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Mostrar el snapshot almacenado de un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user es requerido")
			}
			props, err := store.GetUserProperties(context.Background(), userID)
			if err != nil {
				return err
			}
			raw, ok := props[propstore.SnapshotPropertyKey]
			if !ok || raw == "" {
				fmt.Println("sin snapshot (el usuario nunca entró por un provider soportado)")
				return nil
			}

			if out == "json" {
				var v any
				if json.Unmarshal([]byte(raw), &v) == nil {
					p, _ := json.MarshalIndent(v, "", "  ")
					fmt.Println(string(p))
					return nil
				}
				fmt.Println(raw)
				return nil
			}

			snap, err := claims.ParseSnapshot(raw)
			if err != nil {
				fmt.Printf("snapshot corrupto: %v\nvalor crudo: %s\n", err, raw)
				return nil
			}
			fmt.Printf("provider:     %s\nlast updated: %s\nfields:       %d\n", snap.Provider, snap.UpdatedAt, len(snap.Fields))
			for k, v := range snap.Fields {
				fmt.Printf("  %s = %v\n", k, v)
			}
			return nil
		},
	}
	getCmd.Flags().StringVar(&userID, "user", "", "ID del usuario")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Vaciar el snapshot de un usuario (deja la property en blanco)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user es requerido")
			}
			err := store.PatchUserProperties(context.Background(), userID, map[string]string{
				propstore.SnapshotPropertyKey: "",
			})
			if err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	clearCmd.Flags().StringVar(&userID, "user", "", "ID del usuario")

	snapshotCmd := &cobra.Command{Use: "snapshot", Short: "Operaciones sobre snapshots de usuarios"}
	snapshotCmd.AddCommand(getCmd)
	snapshotCmd.AddCommand(clearCmd)

	root.AddCommand(propertyCmd)
	root.AddCommand(snapshotCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
