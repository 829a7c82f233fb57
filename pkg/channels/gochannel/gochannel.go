// Package gochannel provides the in-process pub/sub channel used by tests
// and single-binary deployments.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	liveBuffer = 256
	testBuffer = 8
)

// CreateChannel returns a GoChannel pub/sub pair sized for fire-and-forget
// event publishing. The same instance serves both roles.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return create(gochannel.Config{
		OutputChannelBuffer: liveBuffer,
	}, logger)
}

// CreateTestChannel returns a GoChannel pair tuned for deterministic tests:
// persistent messages and blocking publish.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	return create(gochannel.Config{
		OutputChannelBuffer:            testBuffer,
		Persistent:                     true,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

func create(config gochannel.Config, logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(config, logger)

	return pubSub, pubSub, nil
}
