// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"fmt"

	"github.com/jmcp/jfy-monitor/pkg/sink"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// UploadSchedule is the cron expression for PVOutput uploads: every five
// minutes on the minute
const UploadSchedule = "0 */5 * * * *"

// Uploads runs PVOutput uploads on UploadSchedule
type Uploads struct {
	scheduler quartz.Scheduler
}

// StartUploads schedules one job per uploader. With no uploaders the
// returned Uploads does nothing.
func StartUploads(ctx context.Context, uploaders []*sink.PVOutput, logger *zap.Logger) (*Uploads, error) {
	if len(uploaders) == 0 {
		return &Uploads{}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scheduler := quartz.NewStdScheduler()

	for _, pv := range uploaders {
		trigger, err := quartz.NewCronTrigger(UploadSchedule)
		if err != nil {
			return nil, fmt.Errorf("upload schedule: %w", err)
		}

		upload := job.NewFunctionJob(func(ctx context.Context) (bool, error) {
			if err := pv.Upload(ctx); err != nil {
				logger.Warn("pvoutput upload failed", zap.String("system", pv.SystemID()), zap.Error(err))
				return false, err
			}
			return true, nil
		})
		detail := quartz.NewJobDetail(upload, quartz.NewJobKey("pvoutput-"+pv.SystemID()))
		if err := scheduler.ScheduleJob(detail, trigger); err != nil {
			return nil, fmt.Errorf("schedule upload for system %s: %w", pv.SystemID(), err)
		}
	}

	scheduler.Start(ctx)
	logger.Info("pvoutput uploads scheduled", zap.Int("systems", len(uploaders)), zap.String("cron", UploadSchedule))
	return &Uploads{scheduler: scheduler}, nil
}

// Stop stops the scheduler and waits for running uploads
func (u *Uploads) Stop() {
	if u.scheduler == nil {
		return
	}
	u.scheduler.Stop()
	u.scheduler.Wait(context.Background())
}
