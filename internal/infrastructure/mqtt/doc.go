// Package mqtt publishes upcast discovery announcements to an MQTT
// broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The broker is an optional outward-facing bus: when enabled, upcast
// announces scan lifecycle events and discovered devices so home
// automation systems can react without polling the REST API. upcast
// never subscribes; it is a publisher only.
//
// # Security Considerations
//
//   - TLS is recommended for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceDiscovered("192.168.1.42")
//	client.Publish(topic, payload, 1, false)
package mqtt
