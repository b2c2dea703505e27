package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"fluxcheck/internal/services"
	"fluxcheck/internal/services/caps"
)

type imageInfoOutput struct {
	Image string `json:"image"`
	caps.ImageInfo
	PlatformNames []string `json:"platform_names"`
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "info IMAGE",
		Short: "Show image metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var want caps.Platform
			if platform = strings.TrimSpace(platform); platform != "" {
				p, ok := caps.ParsePlatform(platform)
				if !ok {
					return services.Wrap(services.ErrValidation, "info", "platform",
						fmt.Sprintf("unknown platform %q", platform), nil)
				}
				want = p
			}

			loader, err := ctx.newLoader()
			if err != nil {
				return err
			}
			info, err := loader.Inspect(ctx.requestContext(cmd), args[0])
			if err != nil {
				return err
			}
			if platform != "" && !slices.Contains(info.Platforms, want) {
				return services.Wrap(services.ErrValidation, "info", "platform",
					fmt.Sprintf("%s targets %s, not %s", args[0], caps.PlatformList(info.Platforms), want), nil)
			}

			if ctx.jsonOutput() {
				names := make([]string, len(info.Platforms))
				for i, p := range info.Platforms {
					names[i] = p.String()
				}
				return writeJSON(cmd, imageInfoOutput{Image: args[0], ImageInfo: *info, PlatformNames: names})
			}

			created := "unknown"
			if !info.Created.IsZero() {
				created = info.Created.Format("2006/01/02 15:04:05")
			}
			rows := [][]string{
				{"Image", args[0]},
				{"SPS ID", info.SPSID()},
				{"Platform", caps.PlatformList(info.Platforms)},
				{"Created", created},
				{"Cylinders", fmt.Sprintf("%d-%d", info.MinCylinder, info.MaxCylinder)},
				{"Heads", fmt.Sprintf("%d-%d", info.MinHead, info.MaxHead)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(renderFields(rows), "\n"))
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Fail unless the image targets this platform (case-insensitive)")
	return cmd
}
