// Package monitor connects to the clinic integration bus and lets the
// hospital system drive recording remotely: procedure start/stop messages
// carry the patient context and start/finalize the video, still requests
// grab a frame.
package monitor

import (
	"fmt"
	"net"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/reemio/endoapp/internal/camera"
	"github.com/reemio/endoapp/internal/config"
	"github.com/reemio/endoapp/internal/logging"
	"github.com/reemio/endoapp/internal/state"
)

const (
	topicStart = "endoscopy/procedure/start"
	topicStop  = "endoscopy/procedure/stop"
	topicStill = "endoscopy/procedure/still"
)

var mqttClient mqtt.Client

// Monitor connects to the configured broker and subscribes to the
// procedure topics. A missing broker disables the monitor; connection
// failures are logged, never fatal.
func Monitor(cfg *config.Config, cameras *camera.Manager) {
	if cfg.MQTT.Broker == "" {
		logging.Info("No MQTT broker configured, procedure monitor disabled")
		return
	}

	mqttAddress := fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Broker, cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().AddBroker(mqttAddress)

	// Unique client id per machine so two capture stations can share a broker
	ip, err := getLocalIP()
	if err != nil {
		logging.Error("Failed to get local IP address: %v", err)
		return
	}
	opts.SetClientID(fmt.Sprintf("endoapp-monitor-%s", ip))
	opts.SetDefaultPublishHandler(messageHandler(cameras))
	opts.SetAutoReconnect(true)
	opts.SetResumeSubs(true)

	mqttClient = mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logging.Error("Failed to connect to MQTT broker %s: %v", mqttAddress, token.Error())
		return
	}

	attempts := 0
	maxAttempts := 5
	for !mqttClient.IsConnected() && attempts < maxAttempts {
		time.Sleep(100 * time.Millisecond)
		attempts++
	}
	if !mqttClient.IsConnected() {
		logging.Error("Failed to establish MQTT connection after %d attempts", maxAttempts)
		return
	}

	for _, topic := range []string{topicStart, topicStop, topicStill} {
		logging.Info("Subscribing to topic %s", topic)
		if token := mqttClient.Subscribe(topic, 0, nil); token.Wait() && token.Error() != nil {
			logging.Error("Failed to subscribe to topic %s: %v", topic, token.Error())
		}
	}

	logging.Info("MQTT monitoring started on %s", mqttAddress)
}

// Disconnect closes the broker connection.
func Disconnect() {
	if mqttClient != nil && mqttClient.IsConnected() {
		mqttClient.Disconnect(250)
	}
}

func messageHandler(cameras *camera.Manager) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := string(msg.Payload())
		logging.Trace("MQTT message on %s: %s", msg.Topic(), payload)

		switch msg.Topic() {
		case topicStart:
			handleStart(cameras, payload)
		case topicStop:
			handleStop(cameras)
		case topicStill:
			handleStill(cameras)
		}
	}
}

func handleStart(cameras *camera.Manager, payload string) {
	state.UpdateFromStartMessage(payload)
	if cameras.IsRecording() {
		logging.Warning("Procedure start received while already recording, ignoring")
		return
	}
	if _, err := cameras.StartRecording(); err != nil {
		logging.Error("Procedure start could not begin recording: %v", err)
	}
}

func handleStop(cameras *camera.Manager) {
	if cameras.IsRecording() {
		if _, err := cameras.StopRecording(); err != nil {
			logging.Error("Procedure stop could not finalize recording: %v", err)
		}
	}
	state.ClearProcedure()
}

func handleStill(cameras *camera.Manager) {
	if _, err := cameras.CaptureImage(); err != nil {
		logging.Error("Still capture request failed: %v", err)
	}
}

// getLocalIP returns the outbound IP of this machine.
func getLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
