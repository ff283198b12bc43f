package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/spotprice"
)

var (
	spotFlags                 spotPriceFlags
	showSegments              bool
	defaultSpotPriceTimeout   = time.Minute * 2
	errSpotPriceUsage         = errors.New("specify either --spot-request-id or all of --instance-type, --zone, --start and --stop")
	errSpotPriceMissingRegion = errors.New("must provide a region")
)

type spotPriceFlags struct {
	region             string
	instanceType       string
	zone               string
	start              string
	stop               string
	requestID          string
	productDescription string
}

// byRequest reports which of the two input modes the flags select
func (f spotPriceFlags) byRequest() (bool, error) {
	if f.region == "" {
		return false, errSpotPriceMissingRegion
	}
	explicit := []string{f.instanceType, f.zone, f.start, f.stop}
	var set int
	for _, v := range explicit {
		if v != "" {
			set++
		}
	}
	switch {
	case f.requestID != "" && set == 0:
		return true, nil
	case f.requestID == "" && set == len(explicit):
		return false, nil
	default:
		return false, errSpotPriceUsage
	}
}

// query builds the query for the explicit input mode
func (f spotPriceFlags) query() (spotprice.Query, error) {
	start, err := spotprice.ParseTime(f.start)
	if err != nil {
		return spotprice.Query{}, fmt.Errorf("--start: %w", err)
	}
	stop, err := spotprice.ParseTime(f.stop)
	if err != nil {
		return spotprice.Query{}, fmt.Errorf("--stop: %w", err)
	}
	q := spotprice.Query{
		Region:             f.region,
		InstanceType:       f.instanceType,
		AvailabilityZone:   f.zone,
		ProductDescription: f.productDescription,
		Window:             spotprice.Window{Start: start, End: stop},
	}
	return q, q.Validate()
}

func init() {
	rootCmd.AddCommand(spotPriceCmd)

	flags := spotPriceCmd.Flags()
	flags.StringVarP(&spotFlags.region, "region", "r", "", "region the instance ran in (e.g. us-east-1)")
	flags.StringVar(&spotFlags.instanceType, "instance-type", "", "instance type (e.g. c5d.large)")
	flags.StringVar(&spotFlags.zone, "zone", "", "availability zone (e.g. us-east-1a)")
	flags.StringVar(&spotFlags.start, "start", "", "window start, timezone aware (e.g. 2020-02-11T18:32:08Z)")
	flags.StringVar(&spotFlags.stop, "stop", "", "window end, timezone aware (e.g. 2020-02-11T19:02:08Z)")
	flags.StringVar(&spotFlags.requestID, "spot-request-id", "", "spot instance request to price (e.g. sir-abc123)")
	flags.StringVar(&spotFlags.productDescription, "product-description", spotprice.DefaultProductDescription,
		"spot price product description")
	flags.BoolVar(&showSegments, "segments", false, "show the price segments the cost is made of")
}

var spotPriceCmd = &cobra.Command{
	Use:   "spot-price",
	Short: "estimate what a spot instance cost from the spot price history",
	Args: func(cmd *cobra.Command, args []string) error {
		if spotFlags.region == "" {
			spotFlags.region = viper.GetString("region")
		}
		_, err := spotFlags.byRequest()
		return err
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSpotPriceTimeout)
		defer cancel()

		ec2Client, err := cloudaws.NewEC2Client(ctx, spotFlags.region)
		if err != nil {
			log.Fatal(err)
		}

		var q spotprice.Query
		if byRequest, _ := spotFlags.byRequest(); byRequest {
			q, err = spotprice.ResolveSpotRequest(ctx, ec2Client, spotFlags.requestID, time.Now())
			q.Region = spotFlags.region
			q.ProductDescription = spotFlags.productDescription
		} else {
			q, err = spotFlags.query()
		}
		if err != nil {
			log.Fatal(err)
		}
		log.Infof("pricing %v in %v from %v to %v", q.InstanceType, q.AvailabilityZone,
			q.Window.Start.Format(time.RFC3339), q.Window.End.Format(time.RFC3339))

		events, err := spotprice.NewHistoryFetcher(ec2Client).Fetch(ctx, q)
		if err != nil {
			log.Fatal(err)
		}
		result, err := spotprice.Integrate(events, q.Window)
		if err != nil {
			log.Fatal(err)
		}

		if warning := uncoveredWarning(result); warning != "" {
			color.Yellow("%v", warning)
		}

		fmt.Println(result.AverageHourlyCost, result.TotalCost, result.TotalHours)

		if showSegments {
			fmt.Println(segmentsTable(result))
		}
	},
}

func uncoveredWarning(result *spotprice.Result) string {
	uncovered := result.Uncovered()
	if uncovered <= 0 {
		return ""
	}
	return fmt.Sprintf("spot price history does not cover the first %v of the window, that time is not billed",
		uncovered.Round(time.Second))
}

func segmentsTable(result *spotprice.Result) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Start", "End", "Price/h", "Cost"})
	for _, s := range result.Segments {
		tw.AppendRow(table.Row{
			s.Start.Format(time.RFC3339),
			s.End.Format(time.RFC3339),
			fmt.Sprintf("%.4f", s.Price),
			fmt.Sprintf("%.4f", s.Cost),
		})
	}
	tw.AppendFooter(table.Row{"", "", "Total", fmt.Sprintf("%.4f", result.TotalCost)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}
