package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/gographics/imagick.v3/imagick"
	"gopkg.in/yaml.v3"

	"photomap/internal/config"
	"photomap/internal/extract"
)

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration in effect as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(root.cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# config file: %s\n", config.Path())
			_, err = out.Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	})

	return cmd
}

func newToolsCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Report optional helpers: exiftool and ImageMagick HEIC support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			imagick.Initialize()
			defer imagick.Terminate()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Built with Go %s\n", runtime.Version())
			for _, st := range extract.CheckTools() {
				state := "missing"
				if st.Available {
					state = "available"
				}
				fmt.Fprintf(out, "  %-18s %-10s %s\n", st.Name, state, st.Version)
				if st.Error != nil && root.log != nil {
					root.log.Debug("tool check failed", "tool", st.Name, "error", st.Error)
				}
			}
			if !root.cfg.Import.UseExiftool {
				fmt.Fprintln(out, "exiftool fallback is disabled in the configuration")
			}
			return nil
		},
	}
}
