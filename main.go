package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"biosync/docs"
	"biosync/internal/api"
	"biosync/internal/config"
	"biosync/internal/device"
	"biosync/internal/engine"
	"biosync/internal/export"
	"biosync/internal/rpc"
	"biosync/internal/store"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

type services struct {
	store  *store.SQLiteStore
	engine *engine.Engine
	agent  *device.AgentReader
	export *export.Service
}

func buildServices(cfg config.Config) (*services, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, err
	}
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	agent := device.NewAgentReader(cfg.DeviceTimeout)
	return &services{
		store:  db,
		engine: engine.New(db, agent, nil),
		agent:  agent,
		export: export.NewService(db, cfg.ExportDir),
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			svc, err := buildServices(cfg)
			if err != nil {
				return err
			}

			docs.SwaggerInfo.Title = "BioSync API"
			docs.SwaggerInfo.Version = "v0.1.0"

			r := gin.Default()
			api.RegisterRoutes(r, svc.store, svc.engine, svc.agent, svc.export)

			// swagger UI (embedded docs package); wildcard route registered
			// first to avoid gin routing conflicts
			r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))
			r.GET("/swagger", func(c *gin.Context) {
				c.Redirect(http.StatusFound, "/swagger/index.html")
			})

			return r.Run(cfg.Addr)
		},
	}
}

func stdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve JSON-RPC requests on stdin/stdout for an embedding UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			svc, err := buildServices(cfg)
			if err != nil {
				return err
			}
			srv := rpc.NewServer(svc.store, svc.engine, svc.agent, svc.export)
			return srv.Serve(context.Background(), os.Stdin, os.Stdout)
		},
	}
}

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create or migrate the local database and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if _, err := buildServices(cfg); err != nil {
				return err
			}
			log.Printf("database ready at %s", cfg.DBPath)
			return nil
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:   "biosync",
		Short: "Reconcile biometric attendance punches with a remote HR system",
	}
	root.AddCommand(serveCmd(), stdioCmd(), initDBCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
