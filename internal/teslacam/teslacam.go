package teslacam

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-lambda-go/events"
	log "github.com/sirupsen/logrus"
	"github.com/trashcan/teslacam-stack/internal/config"
)

const (
	// UploadSubject is the SNS subject sent when a TeslaCam folder finished uploading
	UploadSubject = "TeslaCam Upload"

	videoPattern = `/\d{4}-\d\d-\d\dT\d\d-\d\d-\d\d_\d{4}-\d\d-\d\dT\d\d-\d\d-\d\d\.mp4$`
)

// ObjectStore reads the uploaded TeslaCam folders
type ObjectStore interface {
	PrefixExists(ctx context.Context, bucket, prefix string) (bool, error)
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	PresignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

// Notifier sends a message to the user
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Hooks launch a processing instance for every uploaded TeslaCam folder
type Hooks struct {
	config   *config.Lambda
	objects  ObjectStore
	notifier Notifier
}

// New returns initialized Hooks
func New(config *config.Lambda, objects ObjectStore, notifier Notifier) *Hooks {
	return &Hooks{
		config:   config,
		objects:  objects,
		notifier: notifier,
	}
}

// Filter accepts TeslaCam upload notifications for folders present in the bucket and returns the
// folder. filter_testfolder replaces the folder from the message.
func (h *Hooks) Filter(ctx context.Context, event events.SNSEvent) ([]string, error) {
	if len(event.Records) == 0 {
		log.Warn("event has no records")
		return nil, nil
	}
	subject := event.Records[0].SNS.Subject
	folder := event.Records[0].SNS.Message
	log.Infof("received notification subject='%v' message='%v'", subject, folder)

	if h.config.FilterTestFolder != "" {
		folder = h.config.FilterTestFolder
	}

	exists, err := h.objects.PrefixExists(ctx, h.config.Bucket, folder)
	if err != nil {
		return nil, err
	}
	if !exists {
		log.Infof("prefix %v not in bucket %v", folder, h.config.Bucket)
		return nil, nil
	}

	if subject != UploadSubject {
		log.Infof("subject did not match '%v'", UploadSubject)
		return nil, nil
	}
	return []string{folder}, nil
}

// PreProcess does nothing
func (h *Hooks) PreProcess(ctx context.Context, args []string) error {
	return nil
}

// Launched notifies that processing of the folder started
func (h *Hooks) Launched(ctx context.Context, args []string, instanceID string) error {
	h.notify(ctx, fmt.Sprintf("Processing of %v started", args[0]))
	return nil
}

// PostProcess finds the video the instance created in the folder and sends a link to it
func (h *Hooks) PostProcess(ctx context.Context, args []string, instanceID string) error {
	folder := args[0]
	keys, err := h.objects.ListKeys(ctx, h.config.Bucket, folder)
	if err != nil {
		return err
	}

	key := FindVideo(folder, keys)
	if key == "" {
		log.Warnf("no processed video found in %v", folder)
		return nil
	}

	url, err := h.objects.PresignGet(ctx, h.config.Bucket, key, h.config.PresignExpiry)
	if err != nil {
		return err
	}
	h.notify(ctx, fmt.Sprintf("Processing of %v completed.  View video here: %v", folder, url))
	return nil
}

// FindVideo returns the first key in folder named like the processed video,
// YYYY-MM-DDTHH-MM-SS_YYYY-MM-DDTHH-MM-SS.mp4, or an empty string
func FindVideo(folder string, keys []string) string {
	re := regexp.MustCompile("^" + regexp.QuoteMeta(folder) + videoPattern)
	for _, key := range keys {
		if re.MatchString(key) {
			return key
		}
	}
	return ""
}

// notification failures must not stop a launch, the instance is already running
func (h *Hooks) notify(ctx context.Context, message string) {
	if err := h.notifier.Send(ctx, message); err != nil {
		log.Errorf("failed to send notification: %v", err)
	}
}
