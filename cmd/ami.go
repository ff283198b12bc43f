package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/instances"
)

var (
	amiRegion, amiInstanceType string
	defaultAMILookupTimeout    = time.Second * 30
)

func init() {
	rootCmd.AddCommand(amiCmd)

	amiCmd.AddCommand(amiLatestCmd)
	amiLatestCmd.Flags().StringVarP(&amiRegion, "region", "r", "", "region to look up the image in (e.g. us-west-2)")
	amiLatestCmd.Flags().StringVar(&amiInstanceType, "instance-type", "c5d.large",
		fmt.Sprintf("instance type the image must run on. supported families: %v", instances.Supported.GetSupportedFamiliesOutput()))
}

var amiCmd = &cobra.Command{
	Use:   "ami",
	Short: "commands to look up machine images",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("need to specify a subcommand")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {},
}

var amiLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "show the newest Amazon Linux 2 image for an instance type",
	Args: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("region") == "" && amiRegion == "" {
			return fmt.Errorf("must provide a region")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if amiRegion == "" {
			amiRegion = viper.GetString("region")
		}

		family := instances.Supported.GetInstanceTypeDetails(amiInstanceType)
		if family == nil {
			log.Fatalf("instance type %v is not in a supported family: %v", amiInstanceType,
				instances.Supported.GetSupportedFamiliesOutput())
		}

		ctx, cancel := context.WithTimeout(context.Background(), defaultAMILookupTimeout)
		defer cancel()

		imageClient, err := cloudaws.NewImageClient(ctx, amiRegion)
		if err != nil {
			log.Fatal(err)
		}
		image, err := imageClient.Newest(ctx, cloudaws.DefaultImageFilters(family.Arch))
		if err != nil {
			log.Fatal(err)
		}

		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Image ID", "Name", "Architecture", "Created"})
		tw.AppendRow(table.Row{image.ID, image.Name, family.Arch, image.CreationDate.Format(time.RFC3339)})
		fmt.Println(tw.Render())
	},
}
