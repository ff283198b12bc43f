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
	"github.com/trashcan/teslacam-stack/internal/customize"
	"github.com/trashcan/teslacam-stack/internal/stack"
	"github.com/trashcan/teslacam-stack/internal/templates"
	yaml "gopkg.in/yaml.v2"
)

const (
	defaultDeployTimeout = 45 * time.Minute
)

var (
	deployConfigFile string
	skipCode, yes    bool
)

func init() {
	rootCmd.AddCommand(deployCmd)

	flags := deployCmd.Flags()

	flags.StringVarP(&deployConfigFile, "config", "c", config.DefaultDeployFile,
		"deploy parameters file")

	flags.BoolVar(&skipCode, "skip-code", false,
		"do not package or upload the lambda code, the deployed stack keeps its current code.")

	flags.BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation before deploying")
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "deploy or update the CloudFormation stack and the launcher lambda",
	Args:  cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		_ = viper.BindPFlag("deploy-config", cmd.Flags().Lookup("config"))
	},
	Run: func(cmd *cobra.Command, args []string) {
		c := loadDeployConfig()

		bs, err := yaml.Marshal(c)
		if err != nil {
			log.Fatalf("unable to marshal config to YAML: %v", err)
		}
		log.Println("Current settings:")
		fmt.Println(string(bs))

		ctx, cancel := context.WithTimeout(context.Background(), defaultDeployTimeout)
		defer cancel()

		awsConfig, err := cloudaws.LoadConfig(ctx, c.Region)
		if err != nil {
			log.Fatal(err)
		}
		identity, err := cloudaws.CallerIdentity(ctx, awsConfig)
		if err != nil {
			log.Fatal(err)
		}
		color.Cyan("deploying stack %v to account %v in %v as %v", c.StackName, identity.Account, c.Region, identity.Arn)

		if !yes {
			ok, err := promptConfirmer{}.Confirm("Do you want to continue")
			if err != nil {
				log.Fatalf("exiting: %v", err)
			}
			if !ok {
				log.Info("exiting")
				return
			}
		}

		clients := stack.Clients{
			Customizer: &customize.FileCustomizer{Path: c.Customizations},
			Confirmer:  promptConfirmer{},
			Packager:   stack.PackagerFunc(templates.Package),
		}

		stackClient, err := cloudaws.NewStackClient(ctx, c.Region)
		if err != nil {
			log.Fatalf("failed to create aws cloudformation client: %v", err)
		}
		clients.Validator = stackClient
		clients.Deployer = stackClient

		clients.Setup, err = cloudaws.NewSetupClient(ctx, c.Region)
		if err != nil {
			log.Fatalf("failed to create aws setup client: %v", err)
		}

		clients.Uploader, err = cloudaws.NewPackageClient(ctx, c.Region)
		if err != nil {
			log.Fatalf("failed to create aws package client: %v", err)
		}

		clients.Subscriber, err = cloudaws.NewSubscribeClient(ctx, c.Region)
		if err != nil {
			log.Fatalf("failed to create aws subscribe client: %v", err)
		}

		if err := stack.New(c, skipCode, clients).Deploy(ctx); err != nil {
			log.Fatal(err)
		}
	},
}

func loadDeployConfig() *config.Deploy {
	path := viper.GetString("deploy-config")
	if path == "" {
		path = config.DefaultDeployFile
	}
	c, err := config.LoadDeploy(path)
	if err != nil {
		log.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		log.Fatalf("invalid deploy parameters in %v: %v", path, err)
	}
	return c
}
