package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/call"
	"github.com/mossy-p/peercall/internal/media"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/peer"
	"github.com/mossy-p/peercall/internal/transport"
)

func main() {
	var (
		relayURL = flag.String("relay", "ws://localhost:8080", "signaling relay base URL")
		room     = flag.String("room", "", "room id or code to join")
		identity = flag.String("identity", "", "participant identity (email)")
		autoCall = flag.Bool("call", false, "call the first peer that joins the room")
	)
	flag.Parse()

	if *room == "" || *identity == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	capturer, err := media.New()
	if err != nil {
		log.Fatalf("media setup: %v", err)
	}

	client, err := transport.Dial(*relayURL + "/ws/signal/" + *room)
	if err != nil {
		log.Fatalf("connect to relay: %v", err)
	}
	defer client.Close()

	loggerFactory := logging.NewDefaultLoggerFactory()

	newEngine := func(lm call.LocalMedia) (call.Engine, error) {
		eng, err := peer.New(peer.Config{
			ICEServers:     cfg.ICEServers,
			LoggerFactory:  loggerFactory,
			ConfigureMedia: capturer.ConfigureMedia,
		})
		if err != nil {
			return nil, err
		}
		if stream, ok := lm.(*media.Stream); ok {
			for _, track := range stream.Tracks() {
				if err := eng.AddTrack(track); err != nil {
					eng.Close()
					return nil, err
				}
			}
		}
		return eng, nil
	}

	var ctrl *call.Controller
	ctrl = call.New(call.Config{
		Transport:   client,
		Media:       mediaSource{capturer},
		NewEngine:   newEngine,
		RingTimeout: cfg.RingTimeout,
		OnJoined: func(roomID, id string) {
			log.Printf("joined room %s as %s", roomID, id)
		},
		OnPeerJoined: func(id, connID string) {
			log.Printf("%s joined the room (conn %s)", id, connID)
			if *autoCall {
				ctrl.StartCall(connID)
			}
		},
		OnEstablished: func() {
			log.Printf("call established")
		},
		OnEnded: func(reason string) {
			log.Printf("call ended: %s", reason)
		},
		OnRemoteTrack: func(t peer.RemoteTrack) {
			log.Printf("remote %s track %s", t.Kind, t.ID)
		},
	})
	defer ctrl.Close()

	client.OnMessage(ctrl.HandleSignal)
	client.OnDisconnect(func(err error) {
		log.Printf("relay connection lost: %v", err)
		ctrl.TransportLost()
	})
	client.Start()

	if err := client.Send(models.SignalMessage{
		Type:     models.SignalTypeJoinRoom,
		RoomID:   *room,
		Identity: *identity,
	}); err != nil {
		log.Fatalf("join room: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctrl.EndCall()
}

// mediaSource adapts the capturer to the controller's MediaSource.
type mediaSource struct {
	cap *media.Capturer
}

func (m mediaSource) Acquire() (call.LocalMedia, error) {
	stream, err := m.cap.Acquire(media.Constraints{Audio: true, Video: true})
	if err != nil {
		return nil, err
	}
	return stream, nil
}
