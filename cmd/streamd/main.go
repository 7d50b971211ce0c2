package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskstream/streamcore/internal/config"
	"github.com/deskstream/streamcore/internal/logging"
	"github.com/deskstream/streamcore/internal/streaming/dispatcher"
	"github.com/deskstream/streamcore/internal/streaming/engine/openh264"
	"github.com/deskstream/streamcore/internal/streaming/pipeline"
	"github.com/deskstream/streamcore/internal/streaming/session"
	"github.com/deskstream/streamcore/internal/streaming/transport/server"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "streamd",
	Short: "Streaming core server host",
	Long:  `streamd - low-latency remote-desktop streaming server`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the streaming server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("streamd v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/streamcore/streamd.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	log = logging.L("main")
}

func runServer() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogging(cfg)

	log.Info("starting streamd", "version", version, "udp", cfg.ListenUDPAddr, "tcp", cfg.ListenTCPAddr)

	disp := dispatcher.New()

	var videoEncoder *openh264.Encoder
	videoEncoder, err = openh264.NewEncoder(openh264.EncoderParams{Width: 1920, Height: 1080, BitrateBps: 8_000_000, FPS: 60})
	if err != nil {
		log.Warn("software h264 encoder unavailable, continuing without a registered engine", "err", err)
	} else {
		defer videoEncoder.Close()
		log.Info("registered software h264 encoder plugin")
	}

	// The demo geometry is fixed at startup, so a single InitID=1
	// announcement covers the stream's lifetime; a real capture source
	// would bump InitID and call SetInitBlock again on a mode change.
	const demoInitID = 1
	videoInit, err := wire.EncodeVideoInit(wire.VideoInitMessage{
		Codec:          cfg.PreferredCodec,
		InitID:         demoInitID,
		Width:          1920,
		Height:         1080,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		BitDepth:       8,
	})
	if err != nil {
		log.Error("failed to encode video init block", "err", err)
		os.Exit(1)
	}
	disp.SetInitBlock(dispatcher.DefaultStream, dispatcher.NewInitBlock(demoInitID, videoInit))

	srvCfg := server.Config{
		ListenUDPAddr:          cfg.ListenUDPAddr,
		ListenTCPAddr:          cfg.ListenTCPAddr,
		MaxFragmentSizeCeiling: cfg.MaxFragmentSizeCeiling,
		MaxFragmentSizeFloor:   cfg.MaxFragmentSizeFloor,
		DatagramInterval:       time.Duration(cfg.DatagramMsgIntervalSeconds) * time.Second,
		LostMsgThreshold:       cfg.DatagramLostMsgThreshold,
		TurningPointThreshold:  cfg.DatagramTurningPointThreshold,
		DisconnectTimeout:      time.Duration(cfg.DisconnectTimeoutSeconds) * time.Second,
		CipherPassphrase:       cfg.CipherPassphrase,
		CipherSalt:             cfg.CipherSalt,
		ForceIDRCoalesceWindow: 500 * time.Millisecond,
	}

	var srv *server.Server
	callbacks := server.Callbacks{
		AuthorizeDiscoveryRequest: func(deviceID string) server.DiscoveryVerdict {
			return server.DiscoveryVerdict{
				Accept: true,
				StreamDescriptors: []server.StreamDescriptor{
					{StreamID: dispatcher.DefaultStream, Name: "primary-display", Codec: cfg.PreferredCodec},
				},
				Capabilities: server.ServerCapabilities{
					Codecs:      []string{cfg.PreferredCodec},
					Resolutions: []string{"1920x1080"},
					FrameRates:  []int{30, 60},
				},
			}
		},
		AuthorizeConnectionRequest: func(deviceID, peerAddr string) bool {
			log.Info("connection request", "deviceID", deviceID, "peer", peerAddr)
			return true
		},
		OnConnected: func(s *session.Subscriber) {
			log.Info("subscriber connected", "handle", s.Handle, "peer", s.PeerAddr)
		},
		OnDisconnected: func(s *session.Subscriber, reason session.TerminateReason) {
			log.Info("subscriber disconnected", "handle", s.Handle, "reason", reason)
		},
		OnVideoStreamSubscribed: func(s *session.Subscriber, streamID int32) {
			log.Info("stream subscribed", "handle", s.Handle, "stream", streamID)
		},
		OnVideoStreamUnsubscribed: func(s *session.Subscriber, streamID int32) {
			log.Info("stream unsubscribed", "handle", s.Handle, "stream", streamID)
		},
		OnNack: func(s *session.Subscriber, ch wire.Channel, msgID uint32, fragIdx uint16) {},
		OnForceIDRRequest: func(streamID int32) {
			log.Debug("force-idr requested", "stream", streamID)
		},
		OnBandwidthEstimate: func(s *session.Subscriber, bps uint64) {
			log.Debug("bandwidth estimate", "handle", s.Handle, "bps", bps)
		},
		OnInputEvent: func(s *session.Subscriber, keyCode int64, down bool) {
			log.Debug("input event", "handle", s.Handle, "keyCode", keyCode, "down", down)
		},
	}

	srv = server.New(srvCfg, callbacks)
	if err := srv.Start(); err != nil {
		log.Error("failed to start server", "err", err)
		os.Exit(1)
	}

	// The default stream's pipeline terminates in a sink that hands
	// encoded frames straight to the transport for fan-out; capture
	// and real encode scheduling are external collaborators per
	// spec.md §1, so this wiring only proves the dispatch path.
	sink := pipeline.NewSinkSlot(func(f pipeline.Frame) error {
		if len(f.Subframes) == 0 {
			return nil
		}
		block, _ := disp.InitBlock(f.StreamID)
		payload := wire.EncodeMediaFrame(wire.MediaFrameHeader{
			StreamID:       f.StreamID,
			SequenceNumber: f.SequenceNumber,
			Pts:            f.Pts,
			OriginPts:      f.OriginPts,
			Discontinuity:  f.Discontinuity,
			ColorRangeFull: f.ColorRangeFull,
		}, f.Subframes[0].Data)
		srv.SendFrame(f.StreamID, demoInitID, block, wire.ChannelVideoOut, payload)
		return nil
	})
	sink.Start()
	disp.RegisterStream(dispatcher.DefaultStream, sink)

	log.Info("streamd is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down streamd")
	sink.Stop()
	if err := srv.Stop(); err != nil {
		log.Error("error stopping server", "err", err)
	}
	log.Info("streamd stopped")
}
