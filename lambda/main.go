package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/launcher"
	"github.com/trashcan/teslacam-stack/internal/teslacam"
)

const parametersFileEnv = "PARAMETERS_FILE"

func parametersFile() string {
	if path := os.Getenv(parametersFileEnv); path != "" {
		return path
	}
	executable, err := os.Executable()
	if err != nil {
		return config.DefaultLambdaFile
	}
	return filepath.Join(filepath.Dir(executable), config.DefaultLambdaFile)
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	if level, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	path := parametersFile()
	c, err := config.LoadLambda(path)
	if err != nil {
		log.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		log.Fatalf("invalid lambda parameters in %v: %v", path, err)
	}

	l, err := teslacam.NewLauncher(context.Background(), c)
	if err != nil {
		log.Fatal(err)
	}

	lambda.Start(func(ctx context.Context, event events.SNSEvent) (*launcher.Result, error) {
		return l.Handle(ctx, event)
	})
}
