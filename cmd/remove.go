package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/stack"
)

func init() {
	rootCmd.AddCommand(removeCmd)

	removeCmd.Flags().StringVarP(&deployConfigFile, "config", "c", config.DefaultDeployFile,
		"deploy parameters file of the stack you'd like to remove")
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "remove the CloudFormation stack",
	Args:  cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		_ = viper.BindPFlag("deploy-config", cmd.Flags().Lookup("config"))
	},
	Run: func(cmd *cobra.Command, args []string) {
		c := loadDeployConfig()

		log.Println("details of stack to be deleted:")
		fmt.Println("Stack name:", c.StackName)
		fmt.Println("Stack region:", c.Region)
		fmt.Println("")

		color.Red("this is a destructive action! the lambda, its topic and instance roles will be removed. " +
			"uploaded video and the lambda code bucket are kept.")
		ok, err := promptConfirmer{}.Confirm(fmt.Sprintf("this will remove stack %v. do you want to continue", c.StackName))
		if err != nil {
			log.Fatalf("Exiting %v", err)
		}
		if !ok {
			log.Info("exiting")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), cloudaws.DefaultStackWaitTimeout+time.Minute)
		defer cancel()

		stackClient, err := cloudaws.NewStackClient(ctx, c.Region)
		if err != nil {
			log.Fatalf("failed to create aws cloudformation client: %v", err)
		}
		if err := stack.New(c, false, stack.Clients{Deployer: stackClient}).Remove(ctx); err != nil {
			log.Fatalf("failed to remove stack: %v", err)
		}
	},
}
