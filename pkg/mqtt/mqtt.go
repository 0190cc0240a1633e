package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

const (
	// TopicSpread carries live spread readings from the sensor sources.
	// The app subscribes to it to trigger early estimation cycles.
	TopicSpread = "heatwise/sensor/spread"
	// TopicResult carries the outcome of each estimation cycle.
	TopicResult = "heatwise/estimator/result"
	// TopicState carries live readings taken by the controller itself.
	TopicState = "heatwise/sensor/state"
)

// Start runs the embedded broker until ctx is done. The inline client is
// enabled so the controller can publish and subscribe without a network
// round trip.
func Start(ctx context.Context, wg *sync.WaitGroup, address string) (*mqttv2.Server, error) {
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
	})

	// Allow all connections.
	_ = server.AddHook(new(auth.AllowHook), nil)

	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: address})
	err := server.AddListener(tcp)
	if err != nil {
		return server, err
	}

	err = server.Serve()
	if err != nil {
		return server, err
	}

	wg.Add(1)
	go func() {
		<-ctx.Done()
		server.Close()
		wg.Done()
	}()
	return server, nil
}

// PublishJSON publishes v marshaled as JSON on topic using the inline client.
func PublishJSON(server *mqttv2.Server, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return server.Publish(topic, payload, false, 0)
}
