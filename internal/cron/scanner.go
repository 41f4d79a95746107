package cron

import (
	"time"

	"github.com/Lavavarshney/Library-Management-System/pkg/clock"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/metrics"
	pkgredis "github.com/Lavavarshney/Library-Management-System/pkg/redis"
)

// ScannerParams wire the overdue scanner. Without Redis the cycle lock is
// process local, which is only correct for a single scanner instance.
type ScannerParams struct {
	Logger      *logger.Logger
	Loans       overdueLister
	Publisher   noticePublisher
	Clock       clock.Clock
	Interval    time.Duration
	Redis       *pkgredis.Client
	CronMetrics *metrics.CronJobMetrics
	ScanMetrics *metrics.ScannerMetrics
}

// NewOverdueScanner returns a cron service running the overdue scan job.
func NewOverdueScanner(params ScannerParams) (*Service, error) {
	job, err := NewOverdueScanJob(OverdueScanJobParams{
		Logger:    params.Logger,
		Loans:     params.Loans,
		Publisher: params.Publisher,
		Clock:     params.Clock,
		Metrics:   params.ScanMetrics,
	})
	if err != nil {
		return nil, err
	}

	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	var lock Lock = NewLocalLock()
	if params.Redis != nil {
		redisLock, err := NewRedisLock(params.Redis, params.Redis.LockKey("cron", overdueScanJobName), 2*interval)
		if err != nil {
			return nil, err
		}
		lock = redisLock
	}

	return NewService(ServiceParams{
		Logger:   params.Logger,
		Registry: NewRegistry(job),
		Lock:     lock,
		Metrics:  params.CronMetrics,
		Interval: interval,
	})
}
