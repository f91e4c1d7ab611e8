package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

const (
	binaryPath    = "dist/i2cbridge"
	mainPackage   = "./cmd/i2cbridge"
	configPackage = "github.com/mklimuk/i2cbridge/config"
	builderImage  = "gophertribe/gobuild:1.25-bookworm"
)

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the i2cbridge binary",
		Long: `Build the i2cbridge binary into dist/.

Native builds run go build directly. Builds for another os/arch run inside
the builder container because the MCP2221 adapter needs cgo (hidapi).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targetOS := cmd.Flag("os").Value.String()
			targetArch := cmd.Flag("arch").Value.String()
			version := cmd.Flag("version").Value.String()
			crossOS := cmd.Flag("cross-os").Value.String()
			crossArch := cmd.Flag("cross-arch").Value.String()

			if targetOS == runtime.GOOS && targetArch == runtime.GOARCH {
				if crossOS != "" && crossArch != "" {
					targetOS = crossOS
					targetArch = crossArch
				}
				return build.GoBuild(binaryPath, mainPackage, build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: configPackage,
					EnableCgo:     true,
					Arch:          targetArch,
					OS:            targetOS,
				})
			}

			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			// the container runs this tool natively and cross compiles from there
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", targetOS, targetArch), []string{"build", "--version", version, "--cross-os", crossOS, "--cross-arch", crossArch}, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   builderImage,
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version injected into the binary")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")

	return cmd
}
