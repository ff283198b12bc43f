package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/teslacam"
)

var (
	functionName, launchRegion, subject, folder string
	lambdaConfigFile, profileName, listRegions  string
	terminateInstanceID, terminateRegion        string
)

var (
	defaultExecuteLambdaTimeout     = time.Minute * 15
	defaultLocalLaunchTimeout       = time.Hour * 2
	defaultTerminateInstanceTimeout = time.Second * 10
	defaultListInstancesTimeout     = time.Second * 30
)

func init() {
	rootCmd.AddCommand(launchCmd)

	launchCmd.AddCommand(launchStartCmd)
	launchStartCmd.Flags().StringVar(&functionName, "function", "", "name of the deployed launcher lambda function")
	_ = viper.BindPFlag("function", launchStartCmd.Flags().Lookup("function"))
	launchStartCmd.Flags().StringVarP(&launchRegion, "region", "r", "", "region of the lambda function")
	launchStartCmd.Flags().StringVar(&subject, "subject", teslacam.UploadSubject, "simulated sns subject")
	launchStartCmd.Flags().StringVar(&folder, "message", "", "simulated sns message, the uploaded folder")

	launchCmd.AddCommand(launchLocalCmd)
	launchLocalCmd.Flags().StringVarP(&lambdaConfigFile, "parameters", "p", config.DefaultLambdaFile, "lambda parameters file")
	launchLocalCmd.Flags().StringVar(&subject, "subject", teslacam.UploadSubject, "simulated sns subject")
	launchLocalCmd.Flags().StringVar(&folder, "message", "", "simulated sns message, the uploaded folder")

	launchCmd.AddCommand(launchListCmd)
	launchListCmd.Flags().StringVar(&profileName, "profile-name", "", "instance profile name the processing instances run with. "+
		"if not set it is read from the lambda parameters and stack outputs")
	launchListCmd.Flags().StringVarP(&lambdaConfigFile, "parameters", "p", config.DefaultLambdaFile, "lambda parameters file")
	launchListCmd.Flags().StringVar(&listRegions, "instance-regions", cloudaws.DefaultInstanceRegions, "regions to look for running instances")
	_ = viper.BindPFlag("instance-regions", launchListCmd.Flags().Lookup("instance-regions"))

	launchCmd.AddCommand(launchTerminateCmd)
	launchTerminateCmd.Flags().StringVarP(&terminateInstanceID, "instance-id", "i", "", "EC2 instance id "+
		"you want to terminate (e.g. i-07ff0f2ed84ff2e8d)")
	launchTerminateCmd.Flags().StringVarP(&terminateRegion, "region", "r", "", "Region of instance you "+
		"want to terminate")
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "commands to start, list, and terminate processing instances.",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("need to specify a subcommand")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {},
}

var launchStartCmd = &cobra.Command{
	Use:   "start",
	Short: "invoke the deployed lambda with a simulated upload notification",
	Args: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("function") == "" {
			return fmt.Errorf("must provide a function name")
		}
		if viper.GetString("region") == "" && launchRegion == "" {
			return fmt.Errorf("must provide function region")
		}
		if folder == "" {
			return fmt.Errorf("must provide a message")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		name := viper.GetString("function")
		if launchRegion == "" {
			launchRegion = viper.GetString("region")
		}

		payload, err := json.Marshal(teslacam.UploadEvent(subject, folder))
		if err != nil {
			log.Fatalf("failed to create payload for lambda function: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), defaultExecuteLambdaTimeout)
		defer cancel()

		log.Infof("calling lambda function %v for folder %v. waiting for processing to finish...", name, folder)
		output, err := cloudaws.ExecuteLambdaFunction(ctx, name, launchRegion, payload)
		if err != nil {
			log.Fatalf("failed to start processing with lambda %v: err=%v", name, err)
		}
		if output.StatusCode != 200 {
			log.Fatalf("failed to start processing with lambda %v: statuscode=%v payload:%s",
				name, output.StatusCode, output.Payload)
		}

		log.Infof("lambda %v finished: %s", name, output.Payload)
	},
}

var launchLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "run the launcher from this machine with a simulated upload notification",
	Args: func(cmd *cobra.Command, args []string) error {
		if folder == "" {
			return fmt.Errorf("must provide a message")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		c := loadLambdaConfig()

		ctx, cancel := context.WithTimeout(context.Background(), defaultLocalLaunchTimeout)
		defer cancel()

		l, err := teslacam.NewLauncher(ctx, c)
		if err != nil {
			log.Fatal(err)
		}
		result, err := l.Handle(ctx, teslacam.UploadEvent(subject, folder))
		if err != nil {
			log.Fatal(err)
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(out))
	},
}

var launchTerminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "terminate a running processing instance",
	Args: func(cmd *cobra.Command, args []string) error {
		if terminateInstanceID == "" {
			return fmt.Errorf("must provide an instance id to terminate")
		}
		if terminateRegion == "" {
			return fmt.Errorf("must provide region for instance to terminate")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTerminateInstanceTimeout)
		defer cancel()

		output, err := cloudaws.TerminateEC2Instance(ctx, terminateInstanceID, terminateRegion)
		if err != nil {
			log.Fatal(err)
		}

		log.Infof("terminated instance %v in region %v: %v", terminateInstanceID, terminateRegion, len(output.TerminatingInstances))
	},
}

var launchListCmd = &cobra.Command{
	Use:   "list",
	Short: "list running processing instances",
	Run: func(cmd *cobra.Command, args []string) {
		listRegions = viper.GetString("instance-regions")

		ctx, cancel := context.WithTimeout(context.Background(), defaultListInstancesTimeout)
		defer cancel()

		if profileName == "" {
			profileName = stackInstanceProfile(ctx, loadLambdaConfig())
		}

		instances, err := cloudaws.GetRunningEC2InstancesWithProfileName(ctx, profileName, listRegions)
		if err != nil {
			log.Fatal(err)
		}

		if len(instances) == 0 {
			log.Info("no running processing instances found")
			return
		}

		for _, instance := range instances {
			fmt.Println(instance)
		}
	},
}

// stackInstanceProfile resolves the instance profile name the lambda launches with
func stackInstanceProfile(ctx context.Context, c *config.Lambda) string {
	if c.StackName == "" {
		return c.InstanceProfileName
	}
	stackClient, err := cloudaws.NewStackClient(ctx, c.Region)
	if err != nil {
		log.Fatal(err)
	}
	outputs, err := stackClient.Outputs(ctx, c.StackName)
	if err != nil {
		log.Fatal(err)
	}
	if v, ok := outputs[c.InstanceProfileName]; ok {
		return v
	}
	return c.InstanceProfileName
}

func loadLambdaConfig() *config.Lambda {
	c, err := config.LoadLambda(lambdaConfigFile)
	if err != nil {
		log.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		log.Fatalf("invalid lambda parameters in %v: %v", lambdaConfigFile, err)
	}
	return c
}
