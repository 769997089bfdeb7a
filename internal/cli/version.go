package cli

import (
	"fmt"

	"github.com/me/dxcompiler/internal/compiler"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the compiler version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(compiler.Version)
		},
	}
}
