package cmd

import (
	"github.com/spf13/cobra"

	"livepush/src/config"
)

var (
	configFile string
	conf       *config.Config

	rootCmd = &cobra.Command{
		Use:   "livepush",
		Short: "H.264/AAC to RTMP publisher",
		Long: `livepush muxes H.264 Annex-B and AAC samples into FLV tags and publishes them to an
RTMP server or an FLV file. It also ships a small RTMP ingest server with HTTP-FLV playback.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			if conf, err = config.Load(configFile); err != nil {
				return err
			}
			return conf.ApplyLogLevel()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default livepush.yaml in ., $HOME/.livepush, /etc/livepush)")

	rootCmd.AddCommand(NewPushCommand())
	rootCmd.AddCommand(NewServeCommand())
}
