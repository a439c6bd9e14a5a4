package main

import (
	"github.com/spf13/cobra"

	"github.com/arkilian/arkdb/internal/app"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		httpAddr string
		grpcAddr string
		noGRPC   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the database over HTTP and gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTP.Addr = httpAddr
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.GRPC.Addr = grpcAddr
			}
			if noGRPC {
				cfg.GRPC.Enabled = false
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("arkdb %s serving %s\n", version.String(), cfg.Name)
			return a.Wait(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address")
	cmd.Flags().BoolVar(&noGRPC, "no-grpc", false, "Disable the gRPC server")
	return cmd
}
