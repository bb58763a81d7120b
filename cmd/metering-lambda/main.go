package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/matheuspdias/managerclin/internal/app/bootstrap"
	appconfig "github.com/matheuspdias/managerclin/internal/config"
	"github.com/matheuspdias/managerclin/internal/telemedicine"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

type sweepRunner interface {
	SweepOnce(ctx context.Context) (telemedicine.SweepReport, error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		panic(errors.New("DATABASE_URL is required"))
	}

	ctx := context.Background()
	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		panic(err)
	}
	email, err := bootstrap.BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		panic(err)
	}
	stack, err := bootstrap.BuildStack(ctx, cfg, pool, email, nil, logger)
	if err != nil {
		panic(err)
	}
	sweeper := stack.NewSweeper(cfg, logger)

	timeout := sweepTimeout(os.Getenv("SWEEP_TIMEOUT"))
	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (telemedicine.SweepReport, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handle(ctx, sweeper, evt, logger)
	})
}

func handle(ctx context.Context, sweeper sweepRunner, evt events.CloudWatchEvent, logger *logging.Logger) (telemedicine.SweepReport, error) {
	if evt.Source != "" && evt.Source != "aws.events" {
		logger.Warn("metering lambda: ignoring event", "source", evt.Source, "detail_type", evt.DetailType)
		return telemedicine.SweepReport{}, nil
	}
	report, err := sweeper.SweepOnce(ctx)
	if err != nil {
		return telemedicine.SweepReport{}, fmt.Errorf("metering lambda: sweep: %w", err)
	}
	logger.Info("metering lambda: sweep finished",
		"event_id", evt.ID, "orgs", report.Orgs, "checked", report.Checked,
		"debited", report.Debited, "terminated", report.Terminated, "failures", report.Failures)
	return report, nil
}

func sweepTimeout(raw string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && d > 0 {
		return d
	}
	return 50 * time.Second
}
