package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-polling-backend/config"
	"live-polling-backend/routes"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:          "live-polling",
		Short:        "Live classroom polling server",
		Long:         "Runs one live classroom session: timed polls, at-most-once voting, roster and chat over WebSocket and REST.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), v, cfgFile)
		},
	}
	serveCmd.Flags().Int("port", 8090, "listen port")
	serveCmd.Flags().String("history-driver", "memory", "history store: memory, sqlite, mysql or redis")
	serveCmd.Flags().Bool("archive-superseded", false, "archive a poll replaced before it expired")
	bindFlag(v, "server.port", serveCmd, "port")
	bindFlag(v, "history.driver", serveCmd, "history-driver")
	bindFlag(v, "session.archive_superseded", serveCmd, "archive-superseded")

	rootCmd.AddCommand(serveCmd)
	rootCmd.RunE = serveCmd.RunE
	return rootCmd
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		log.Fatalf("绑定参数失败 %s: %v", name, err)
	}
}

func serve(parent context.Context, v *viper.Viper, cfgFile string) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := wireApp(ctx, cfg, stop)
	if err != nil {
		return err
	}

	srv := routes.StartServer(app.router, cfg.Server.Port)
	log.Println("服务器启动成功")

	// 等待中断信号或租约丢失以优雅地关闭服务器
	<-ctx.Done()
	log.Println("关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app.hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务器强制关闭: %v", err)
	}
	app.close(shutdownCtx)

	log.Println("服务器优雅关闭")
	return nil
}
