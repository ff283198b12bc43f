package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/customize"
)

var customizationsFile string

func init() {
	rootCmd.AddCommand(customizeCmd)

	customizeCmd.Flags().StringVarP(&customizationsFile, "file", "f", config.DefaultCustomizationsFile,
		"customizations file listing the .safe files to write and their replacements")
}

var customizeCmd = &cobra.Command{
	Use:   "customize",
	Short: "write customized files from their .safe sources without deploying",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		written, err := (&customize.FileCustomizer{Path: customizationsFile}).Customize()
		if err != nil {
			log.Fatal(err)
		}
		for _, path := range written {
			fmt.Println(path)
		}
	},
}
