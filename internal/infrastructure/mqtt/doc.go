// Package mqtt provides MQTT client connectivity for Revend.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Revend uses MQTT for machine liveness and event reporting. Every
// kiosk connects with an LWT on its own status topic, so the backend
// learns about a crashed or unplugged machine from the broker itself
// rather than by polling.
//
//	Kiosks ↔ MQTT Broker ↔ Revend Backend
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	// Backend: fleet-wide status view
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllMachineStatuses(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Kiosk: per-machine status with LWT
//	client, err := mqtt.ConnectMachine(cfg.MQTT, cfg.Kiosk.MachineID)
package mqtt
