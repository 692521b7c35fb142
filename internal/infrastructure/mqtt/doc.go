// Package mqtt provides the broker connection for the heat-pump bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retain control
//   - Subscriptions that are restored after a reconnect
//   - A retained JSON status with a Last Will for offline detection
//   - Topic builders for the graylogic/{category}/{protocol}/{id} scheme
//     and Home Assistant discovery
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Protocol: "heatpump"}
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
//
// Message handlers run concurrently: the client disables paho's ordered
// delivery so a slow Modbus write does not hold up other topics.
package mqtt
