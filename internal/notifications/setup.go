package notifications

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/Lavavarshney/Library-Management-System/pkg/config"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/metrics"
	"github.com/Lavavarshney/Library-Management-System/pkg/pubsub"
	pkgredis "github.com/Lavavarshney/Library-Management-System/pkg/redis"
)

// SetupParams select and configure the notification transport. Listen runs a
// bridge that relays notices published by other processes into the local hub.
type SetupParams struct {
	Config  config.NotificationsConfig
	GCP     config.GCPConfig
	PubSub  config.PubSubConfig
	Redis   *pkgredis.Client
	Logger  *logger.Logger
	Metrics *metrics.DispatcherMetrics
	Listen  bool
}

type bridge interface {
	Run(ctx context.Context) error
}

// Runtime owns the dispatcher plus whatever bridge and broker client back it.
type Runtime struct {
	Dispatcher *Dispatcher
	PubSub     *pubsub.Client

	bridge  bridge
	logg    *logger.Logger
	closers []func() error
}

func Setup(ctx context.Context, params SetupParams) (*Runtime, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	hub := NewHub(HubOptions{
		Buffer:         params.Config.SubscriberBuffer,
		DeliverTimeout: params.Config.PublishTimeout,
		Logger:         params.Logger,
		Metrics:        params.Metrics,
	})
	rt := &Runtime{logg: params.Logger}

	var transport Transport
	switch params.Config.Transport {
	case "", config.TransportMemory:
	case config.TransportRedis:
		if params.Redis == nil {
			return nil, errors.New("redis transport requires a redis client")
		}
		rdt, err := NewRedisTransport(params.Redis, params.Config.Channel)
		if err != nil {
			return nil, err
		}
		transport = rdt
		if params.Listen {
			b, err := NewRedisBridge(params.Redis, params.Config.Channel, hub, params.Logger)
			if err != nil {
				return nil, err
			}
			rt.bridge = b
		}
	case config.TransportPubSub:
		client, err := pubsub.NewClient(ctx, params.GCP, params.PubSub, params.Logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap pubsub: %w", err)
		}
		rt.PubSub = client
		rt.closers = append(rt.closers, client.Close)

		pst, err := NewPubSubTransport(client.NotificationPublisher())
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append([]func() error{func() error { pst.Stop(); return nil }}, rt.closers...)
		transport = pst

		if params.Listen {
			if sub := client.NotificationSubscription(); sub != nil {
				b, err := NewPubSubBridge(sub, hub, params.Logger)
				if err != nil {
					_ = rt.Close()
					return nil, err
				}
				rt.bridge = b
			} else {
				params.Logger.Warn(ctx, "no pubsub subscription configured; notices from other processes will not reach local streams")
			}
		}
	default:
		return nil, fmt.Errorf("unknown notification transport %q", params.Config.Transport)
	}

	dispatcher, err := NewDispatcher(DispatcherParams{
		Hub:            hub,
		Transport:      transport,
		PublishTimeout: params.Config.PublishTimeout,
		Logger:         params.Logger,
		Metrics:        params.Metrics,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Dispatcher = dispatcher
	return rt, nil
}

// Start runs the bridge, if any, until ctx is cancelled. A bridge failure is
// logged; local delivery keeps working without it.
func (r *Runtime) Start(ctx context.Context) {
	if r.bridge == nil {
		return
	}
	go func() {
		if err := r.bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logg.Error(ctx, "notification bridge stopped", err)
		}
	}()
}

func (r *Runtime) Close() error {
	var err error
	for _, closeFn := range r.closers {
		err = multierr.Append(err, closeFn())
	}
	r.closers = nil
	return err
}
