package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Setup config file with defaults for teslacam-stack commands",
	Run: func(cmd *cobra.Command, args []string) {
		color.Cyan(fmt.Sprintf("Region is the AWS region commands default to. Valid options: %v\n",
			strings.Join(cloudaws.GetSupportedRegions(), ", ")))
		validate := func(input string) error {
			if !cloudaws.IsSupportedRegion(input) {
				return errors.New("Invalid region")
			}
			return nil
		}
		viper.Set("region", prompt("Region ", viper.GetString("region"), validate))

		defaultDeployConfig := config.DefaultDeployFile
		if viper.GetString("deploy-config") != "" {
			defaultDeployConfig = viper.GetString("deploy-config")
		}
		color.Cyan(fmt.Sprintln("Deploy parameters file used by deploy and remove."))
		viper.Set("deploy-config", prompt("Deploy parameters file ", defaultDeployConfig, notEmpty("Deploy parameters file")))

		color.Cyan(fmt.Sprintln("Name of the deployed launcher lambda function, used by launch start."))
		viper.Set("function", prompt("Lambda function name ", viper.GetString("function"), nil))

		defaultInstanceRegions := cloudaws.DefaultInstanceRegions
		if viper.GetString("instance-regions") != "" {
			defaultInstanceRegions = viper.GetString("instance-regions")
		}
		color.Cyan(fmt.Sprintln("Comma separated regions launch list looks for running instances in."))
		validate = func(input string) error {
			for _, region := range strings.Split(input, ",") {
				if !cloudaws.IsSupportedRegion(region) {
					return fmt.Errorf("Invalid region %v", region)
				}
			}
			return nil
		}
		viper.Set("instance-regions", prompt("Instance regions ", defaultInstanceRegions, validate))

		err := viper.WriteConfigAs(configFileFullPath)
		if err != nil {
			log.WithError(err).Fatalf("failed to write config file %s", configFileFullPath)
		}
		log.Infof("teslacam-stack config file has been written to %v", configFileFullPath)
	},
}

func prompt(label, defaultValue string, validate promptui.ValidateFunc) string {
	p := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validate,
	}
	result, err := p.Run()
	if err != nil {
		log.Fatalf("prompt failed %v\n", err)
	}
	return result
}

func notEmpty(name string) promptui.ValidateFunc {
	return func(input string) error {
		if len(input) < 1 {
			return fmt.Errorf("%v is too short", name)
		}
		return nil
	}
}
