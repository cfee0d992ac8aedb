package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/firestore"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/secrets"
	platformstorage "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/storage"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/repositories"
)

const (
	storeProbeTimeout = 1500 * time.Millisecond
	extraProbeTimeout = time.Second
	// secretProbeRef is never created; NotFound proves Secret Manager answered.
	secretProbeRef = "secret://system/healthz?version=latest"
)

// newHealthRepository probes what /readyz reports. Firestore and the media bucket are
// critical; the catalog topic and Secret Manager only degrade readiness.
func newHealthRepository(provider *pfirestore.Provider, gateway *platformstorage.Gateway, fetcher *secrets.Fetcher, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	var checks []repositories.DependencyCheck
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{Name: "firestore", Critical: true, Check: provider.Ping})
	}
	if gateway != nil {
		checks = append(checks, repositories.DependencyCheck{Name: "mediaBucket", Critical: true, Check: gateway.Ping})
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{Name: "catalogTopic", Timeout: extraProbeTimeout, Check: topicProbe(topic)})
	}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{Name: "secretManager", Timeout: extraProbeTimeout, Check: secretProbe(fetcher)})
	}
	return repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(storeProbeTimeout))
}

func topicProbe(topic *pubsub.Topic) func(context.Context) error {
	return func(ctx context.Context) error {
		exists, err := topic.Exists(ctx)
		switch {
		case err != nil:
			return err
		case !exists:
			return fmt.Errorf("topic %s does not exist", topic.ID())
		}
		return nil
	}
}

func secretProbe(fetcher *secrets.Fetcher) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := fetcher.Resolve(ctx, secretProbeRef); err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		return nil
	}
}
