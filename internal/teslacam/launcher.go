package teslacam

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/launcher"
	"github.com/trashcan/teslacam-stack/internal/notify"
)

// NewLauncher returns a launcher running the TeslaCam hooks against AWS in the configured region
func NewLauncher(ctx context.Context, c *config.Lambda) (*launcher.Launcher, error) {
	objects, err := cloudaws.NewObjectClient(ctx, c.Region)
	if err != nil {
		return nil, err
	}
	images, err := cloudaws.NewImageClient(ctx, c.Region)
	if err != nil {
		return nil, err
	}
	stacks, err := cloudaws.NewStackClient(ctx, c.Region)
	if err != nil {
		return nil, err
	}
	instances, err := cloudaws.NewLaunchClient(ctx, c.Region)
	if err != nil {
		return nil, err
	}

	hooks := New(c, objects, notify.NewPushover(c.PushoverToken, c.PushoverKey))
	return launcher.New(c, hooks, images, stacks, instances), nil
}

// UploadEvent returns the SNS event sent when folder finished uploading
func UploadEvent(subject, folder string) events.SNSEvent {
	return events.SNSEvent{Records: []events.SNSEventRecord{{
		EventSource: "aws:sns",
		SNS: events.SNSEntity{
			Type:    "Notification",
			Subject: subject,
			Message: folder,
		},
	}}}
}
