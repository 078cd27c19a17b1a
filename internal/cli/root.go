package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imgsearch/config"
	"imgsearch/internal/logging"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
	logger   *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "imgsearch",
	Short: "Image embedding index - search local images by text description",
	Long: `imgsearch embeds local images with a CLIP-style model, stores the
vectors in an embedded database and answers free-text queries with the
closest images by cosine distance.

Example usage:
  imgsearch init                      # Provision the store
  imgsearch index ./photos            # Embed and store images
  imgsearch search -q "a red bicycle" # Find matching images`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		logger = logging.New(os.Stderr, level, cfg.Logging.Format)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./imgsearch.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func GetLogger() *logging.Logger {
	if logger == nil {
		return logging.Nop()
	}
	return logger
}
